package tables

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/csvimport/internal/core"
	"github.com/JonMunkholm/csvimport/internal/importer"
	"github.com/JonMunkholm/csvimport/internal/mapper"
	"github.com/JonMunkholm/csvimport/internal/store"
)

// ContactRow is one line of a contacts CSV.
type ContactRow struct {
	ID    int    `csv:"Id" validate:"gt=0"`
	Name  string `csv:"Name" validate:"required,max=200"`
	Email string `csv:"Email"`
	State string `csv:"State,omitempty" validate:"omitempty,max=64"`
}

// Contact is a stored contact.
type Contact struct {
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	Email  string `db:"email"`
	State  string `db:"state"`
	Source string `db:"source"`
}

var contactsTable = store.Table[Contact]{
	Name:    "contacts",
	Columns: []string{"id", "name", "email", "state", "source"},
	Values: func(c Contact) []any {
		return []any{c.ID, c.Name, c.Email, c.State, c.Source}
	},
}

var emailCheck = validator.New()

// validateContactEmail reports a malformed Email cell.
func validateContactEmail(ctx context.Context, row ContactRow, rowNumber int) (importer.ImportResult, error) {
	if err := emailCheck.VarCtx(ctx, row.Email, "required,email"); err != nil {
		return importer.Failed(importer.NewCsvError(rowNumber, "Invalid email format")), nil
	}
	return importer.Success, nil
}

// contactMapper copies fields and normalizes email and state. Extra
// column checks come from the embedded FieldMapper.
type contactMapper struct {
	*mapper.FieldMapper[ContactRow, Contact]
}

func (m contactMapper) Map(row ContactRow, extra map[string]any) (Contact, error) {
	c, err := m.FieldMapper.Map(row, extra)
	if err != nil {
		return Contact{}, err
	}
	c.Email = NormalizeEmail(c.Email)
	c.State = NormalizeState(c.State)
	return c, nil
}

func init() {
	core.Register(core.Define(
		core.TableInfo{Key: "contacts", Group: "CRM", Label: "Contacts"},
		core.TableSpec[ContactRow, Contact]{
			Table:      contactsTable,
			Mapper:     contactMapper{mapper.NewFieldMapper[ContactRow, Contact]()},
			Validators: []importer.Validator[ContactRow]{importer.ValidatorFunc[ContactRow](validateContactEmail)},
		},
	))
}
