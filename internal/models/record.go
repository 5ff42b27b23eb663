package models

// RecordFields lists the editable fields of an extracted record in display
// order. Field names double as the wire keys on both sides of the gateway.
var RecordFields = []string{"name", "phone", "email", "company", "designation", "address"}

// ExtractedRecord is one contact pulled out of a document. A single file can
// yield several records.
type ExtractedRecord struct {
	FileID      string `json:"fileId,omitempty" msgpack:"fileId,omitempty"`
	SourceFile  string `json:"sourceFile,omitempty" msgpack:"sourceFile,omitempty"`
	Name        string `json:"name" msgpack:"name"`
	Phone       string `json:"phone" msgpack:"phone"`
	Email       string `json:"email" msgpack:"email"`
	Company     string `json:"company" msgpack:"company"`
	Designation string `json:"designation" msgpack:"designation"`
	Address     string `json:"address" msgpack:"address"`
}

// Field returns the value of the named editable field.
func (r *ExtractedRecord) Field(name string) (string, bool) {
	switch name {
	case "name":
		return r.Name, true
	case "phone":
		return r.Phone, true
	case "email":
		return r.Email, true
	case "company":
		return r.Company, true
	case "designation":
		return r.Designation, true
	case "address":
		return r.Address, true
	}
	return "", false
}

// SetField updates the named editable field. It reports false for unknown
// field names and leaves the record untouched.
func (r *ExtractedRecord) SetField(name, value string) bool {
	switch name {
	case "name":
		r.Name = value
	case "phone":
		r.Phone = value
	case "email":
		r.Email = value
	case "company":
		r.Company = value
	case "designation":
		r.Designation = value
	case "address":
		r.Address = value
	default:
		return false
	}
	return true
}

// FormContext is the name/team/event triple captured once per session before
// the first save, export or email action.
type FormContext struct {
	Name  string `json:"name"`
	Team  string `json:"team"`
	Event string `json:"event"`
}

// Empty reports whether nothing was entered.
func (f FormContext) Empty() bool {
	return f.Name == "" && f.Team == "" && f.Event == ""
}
