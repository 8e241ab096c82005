package codec

import (
	"errors"

	"gopkg.in/yaml.v3"
)

// YAML is a text codec backed by gopkg.in/yaml.v3.
// Use `yaml:"name"` tags to control field names.
type YAML[V any] struct{}

var _ Codec[struct{}] = YAML[struct{}]{}

func (YAML[V]) Encode(v V) ([]byte, error) { return yaml.Marshal(v) }
func (YAML[V]) Decode(b []byte) (V, error) {
	var v V
	if len(b) == 0 {
		return v, errors.New("yaml: empty document")
	}
	err := yaml.Unmarshal(b, &v)
	return v, err
}
func (YAML[V]) Ext() string { return ".yaml" }
