// Package lexicon defines the dictionary entities and changes that strata
// replicates: words, their definitions, usage examples and cross
// references between words.
//
// Importing the package registers every type with the model registry so
// commits can be decoded from storage and from sync payloads.
//
// Reference policy: a definition without its word, or an example without
// its definition, is meaningless and is deleted with it. A cross reference
// is owned by its source word; losing the target only clears TargetID.
package lexicon
