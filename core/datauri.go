package core

import (
	"encoding/base64"
	"errors"
	"strings"
)

var errMalformedDataURI = errors.New("malformed data URI")

// DataURI renders a as data:<contentType>;base64,<payload>.
func DataURI(a *Attachment) string {
	return "data:" + a.ContentType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// ParseDataURI decodes a base64 data URI produced by DataURI.
func ParseDataURI(s string) (*Attachment, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, errMalformedDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errMalformedDataURI
	}
	contentType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return nil, errMalformedDataURI
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	return &Attachment{Data: data, ContentType: contentType}, nil
}
