package records

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"slices"

	"entity-store/core"

	"github.com/go-chi/render"
)

const (
	// Room for the form fields and part headers around the file.
	multipartOverhead = 1 << 20
	maxFormMemory     = 32 << 20
)

var errUploadTooLarge = errors.New("upload exceeds size limit")

// bodyError marks a request body that could not be decoded.
type bodyError struct {
	err error
}

func (e *bodyError) Error() string { return "malformed request body: " + e.err.Error() }
func (e *bodyError) Unwrap() error { return e.err }

func classify(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: %d bytes", errUploadTooLarge, maxErr.Limit)
	}
	return &bodyError{err: err}
}

// readInput decodes a JSON, urlencoded or multipart body into untyped
// input. Only multipart bodies carry a file.
func (res *Resource) readInput(w http.ResponseWriter, r *http.Request) (core.Input, error) {
	in := core.Input{Values: map[string]string{}}
	if r.Body == nil || r.Body == http.NoBody {
		return in, nil
	}
	if res.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, res.MaxUploadBytes+multipartOverhead)
	}

	var mediaType string
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		var err error
		if mediaType, _, err = mime.ParseMediaType(contentType); err != nil {
			return in, &bodyError{err: err}
		}
	}

	switch mediaType {
	case "multipart/form-data":
		return res.readMultipart(r, in)
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return in, classify(err)
		}
		for name, values := range r.PostForm {
			if len(values) > 0 {
				in.Values[name] = values[0]
			}
		}
		return in, nil
	case "", "application/json":
		return res.readJSON(r.Body, in)
	default:
		return in, &bodyError{err: fmt.Errorf("unsupported content type %q", mediaType)}
	}
}

func (res *Resource) readJSON(body io.Reader, in core.Input) (core.Input, error) {
	var raw map[string]any
	if err := render.DecodeJSON(body, &raw); err != nil {
		if errors.Is(err, io.EOF) {
			return in, nil
		}
		return in, classify(err)
	}

	declared := res.Schema.Fields()
	for name, value := range raw {
		switch v := value.(type) {
		case nil:
		case string:
			in.Values[name] = v
		case float64, bool:
			in.Values[name] = fmt.Sprint(v)
		default:
			if slices.Contains(declared, name) {
				return in, &bodyError{err: fmt.Errorf("field %s must be a string", name)}
			}
		}
	}
	return in, nil
}

func (res *Resource) readMultipart(r *http.Request, in core.Input) (core.Input, error) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return in, classify(err)
	}
	defer r.MultipartForm.RemoveAll()

	for name, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			in.Values[name] = values[0]
		}
	}
	for _, field := range res.Schema.FileFields() {
		headers := r.MultipartForm.File[field]
		if len(headers) == 0 {
			continue
		}
		upload, err := res.readUpload(headers[0])
		if err != nil {
			return in, err
		}
		in.Upload = upload
		break
	}
	return in, nil
}

func (res *Resource) readUpload(header *multipart.FileHeader) (*core.Upload, error) {
	if res.MaxUploadBytes > 0 && header.Size > res.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes", errUploadTooLarge, res.MaxUploadBytes)
	}
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	return &core.Upload{
		OriginalName: header.Filename,
		ContentType:  uploadMediaType(header.Header.Get("Content-Type"), data),
		Data:         data,
	}, nil
}

// uploadMediaType keeps only the media type of the declared content type,
// sniffing the data when the client sent none or a generic one.
func uploadMediaType(declared string, data []byte) string {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil || mediaType == "application/octet-stream" {
		mediaType, _, _ = mime.ParseMediaType(http.DetectContentType(data))
	}
	return mediaType
}
