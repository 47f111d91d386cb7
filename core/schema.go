package core

import (
	"strings"
)

type (
	// Schema declares the input contract of one entity.
	Schema struct {
		// Name is the route segment, as in /api/<Name>.
		Name       string
		Collection string
		Singular   string
		Plural     string
		Required   []string
		Optional   []string

		// AttachmentField names the attachment in responses. Empty means the
		// entity carries no attachment.
		AttachmentField    string
		AttachmentRequired bool
		// UploadFields lists the multipart field names accepted for the file,
		// in order of preference. Defaults to AttachmentField.
		UploadFields []string
		// NameFromFile is a field filled from the uploaded file's original
		// name when the client leaves it empty.
		NameFromFile string
	}

	// Upload is a decoded multipart file.
	Upload struct {
		OriginalName string
		ContentType  string
		Data         []byte
	}

	// Input is the untyped request data of one create or update call.
	// Values only holds keys the client actually sent.
	Input struct {
		Values map[string]string
		Upload *Upload
	}

	ValidationError struct {
		Missing []string
	}
)

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

// Fields returns every declared scalar field, required first.
func (s Schema) Fields() []string {
	fields := make([]string, 0, len(s.Required)+len(s.Optional))
	fields = append(fields, s.Required...)
	return append(fields, s.Optional...)
}

func (s Schema) HasAttachment() bool {
	return s.AttachmentField != ""
}

func (s Schema) FileFields() []string {
	if !s.HasAttachment() {
		return nil
	}
	if len(s.UploadFields) > 0 {
		return s.UploadFields
	}
	return []string{s.AttachmentField}
}

// ParseCreate builds a new record from in. The identifier and timestamps
// are left for the store to assign.
func (s Schema) ParseCreate(in Input) (*Record, error) {
	fields := s.pick(in)
	if s.NameFromFile != "" && blank(fields[s.NameFromFile]) && in.Upload != nil {
		fields[s.NameFromFile] = in.Upload.OriginalName
	}

	var missing []string
	for _, name := range s.Required {
		if blank(fields[name]) {
			missing = append(missing, name)
		}
	}
	attachment := s.attachment(in)
	if s.AttachmentRequired && attachment == nil {
		missing = append(missing, s.AttachmentField)
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}
	for name, value := range fields {
		if value == "" {
			delete(fields, name)
		}
	}
	return &Record{Fields: fields, Attachment: attachment}, nil
}

// ParseUpdate builds a patch from in. Required fields may be omitted but
// not cleared.
func (s Schema) ParseUpdate(in Input) (*Patch, error) {
	fields := s.pick(in)

	var missing []string
	for _, name := range s.Required {
		if value, ok := fields[name]; ok && blank(value) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}
	return &Patch{Fields: fields, Attachment: s.attachment(in)}, nil
}

func (s Schema) pick(in Input) map[string]string {
	fields := make(map[string]string)
	for _, name := range s.Fields() {
		if value, ok := in.Values[name]; ok {
			fields[name] = strings.TrimSpace(value)
		}
	}
	return fields
}

// blank reports whether a required field counts as absent. Values are
// stored as sent.
func blank(value string) bool {
	return strings.TrimSpace(value) == ""
}

func (s Schema) attachment(in Input) *Attachment {
	if !s.HasAttachment() || in.Upload == nil || len(in.Upload.Data) == 0 {
		return nil
	}
	return &Attachment{Data: in.Upload.Data, ContentType: in.Upload.ContentType}
}
