package lexicon

import "github.com/roach88/strata/internal/model"

func init() {
	model.RegisterEntity(TypeWord, func() model.Entity { return &Word{} })
	model.RegisterEntity(TypeDefinition, func() model.Entity { return &Definition{} })
	model.RegisterEntity(TypeExample, func() model.Entity { return &Example{} })
	model.RegisterEntity(TypeCrossRef, func() model.Entity { return &CrossRef{} })

	model.RegisterChange(ChangeCreateWord, func() model.Change { return &CreateWord{} })
	model.RegisterChange(ChangeEditWord, func() model.Change { return &EditWord{} })
	model.RegisterChange(ChangeCreateDefinition, func() model.Change { return &CreateDefinition{} })
	model.RegisterChange(ChangeEditDefinition, func() model.Change { return &EditDefinition{} })
	model.RegisterChange(ChangeCreateExample, func() model.Change { return &CreateExample{} })
	model.RegisterChange(ChangeCreateCrossRef, func() model.Change { return &CreateCrossRef{} })
	model.RegisterChange(ChangeSetCrossRefTarget, func() model.Change { return &SetCrossRefTarget{} })
	model.RegisterChange(ChangeDelete, func() model.Change { return &Delete{} })
}

var (
	_ model.Entity = (*Word)(nil)
	_ model.Entity = (*Definition)(nil)
	_ model.Entity = (*Example)(nil)
	_ model.Entity = (*CrossRef)(nil)

	_ model.Change = (*CreateWord)(nil)
	_ model.Change = (*EditWord)(nil)
	_ model.Change = (*CreateDefinition)(nil)
	_ model.Change = (*EditDefinition)(nil)
	_ model.Change = (*CreateExample)(nil)
	_ model.Change = (*CreateCrossRef)(nil)
	_ model.Change = (*SetCrossRefTarget)(nil)
	_ model.Change = (*Delete)(nil)
)
