package types

import (
	"encoding/json"
	"strings"
)

// Known form-field names on the upload boundary. Anything else the client
// sends is carried through verbatim in Extra.
const (
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldUploader    = "uploader"
	fieldPlayers     = "players"
	fieldS3          = "s3"
)

// UploadFields is the typed view of the form fields a client attaches to an
// upload. Known fields are validated eagerly at the boundary; unknown ones
// ride along in Extra.
type UploadFields struct {
	Title        string            `json:"title,omitempty"`
	Description  string            `json:"description,omitempty"`
	Uploader     string            `json:"uploader,omitempty"`
	Players      []string          `json:"players,omitempty"`
	PreferRemote bool              `json:"s3,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// ParseUploadFields builds UploadFields from decoded form values, keeping the
// first value of each key the way Flask-style form handling does.
func ParseUploadFields(form map[string][]string) UploadFields {
	first := func(key string) string {
		if vs := form[key]; len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
		return ""
	}

	fields := UploadFields{
		Title:       first(fieldTitle),
		Description: first(fieldDescription),
		Uploader:    first(fieldUploader),
		Players:     ParsePlayers(first(fieldPlayers)),
	}
	fields.PreferRemote = strings.EqualFold(first(fieldS3), "true")

	for key, vs := range form {
		switch key {
		case fieldTitle, fieldDescription, fieldUploader, fieldPlayers, fieldS3, "file", "url":
			continue
		}
		if len(vs) == 0 || vs[0] == "" {
			continue
		}
		if fields.Extra == nil {
			fields.Extra = make(map[string]string)
		}
		fields.Extra[key] = vs[0]
	}

	return fields
}

// ParsePlayers decodes the optional players field. A JSON string array is the
// canonical form; a plain comma-separated list is accepted as well. Malformed
// input degrades to an empty list instead of failing the upload.
func ParsePlayers(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "[") {
		var players []string
		if err := json.Unmarshal([]byte(raw), &players); err != nil {
			return nil
		}
		return trimEmpty(players)
	}

	return trimEmpty(strings.Split(raw, ","))
}

func trimEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Identity describes the authenticated caller, when there is one.
type Identity struct {
	UserID      string
	DisplayName string
}
