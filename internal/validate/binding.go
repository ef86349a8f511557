package validate

import "github.com/go-playground/validator/v10"

const (
	TagFullName  = "fullname"
	TagStudentID = "studentid"
)

// Register installs the fullname and studentid tags on v.
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation(TagFullName, func(fl validator.FieldLevel) bool {
		return Name(fl.Field().String()) == nil
	}); err != nil {
		return err
	}
	return v.RegisterValidation(TagStudentID, func(fl validator.FieldLevel) bool {
		return StudentID(fl.Field().String()) == nil
	})
}
