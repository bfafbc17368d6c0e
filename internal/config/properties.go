package config

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/magiconair/properties"
	"github.com/spf13/viper"
)

// propertiesCodec reads and writes Java-style properties files. Dotted keys
// become nested maps, the same shape yaml produces.
type propertiesCodec struct{}

func (propertiesCodec) Decode(b []byte, v map[string]any) error {
	// ${key} references are kept as literal text.
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadBytes(b)
	if err != nil {
		return err
	}

	for _, key := range p.Keys() {
		value, _ := p.Get(key)
		path := strings.Split(strings.ToLower(key), ".")
		node := v
		for _, part := range path[:len(path)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				if _, taken := node[part]; taken {
					return fmt.Errorf("property %q conflicts with key %q", key, part)
				}
				child = make(map[string]any)
				node[part] = child
			}
			node = child
		}
		last := path[len(path)-1]
		if _, isMap := node[last].(map[string]any); isMap {
			return fmt.Errorf("property %q conflicts with a nested key", key)
		}
		node[last] = value
	}
	return nil
}

func (propertiesCodec) Encode(v map[string]any) ([]byte, error) {
	flat := make(map[string]string)
	flatten("", v, flat)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	p := properties.NewProperties()
	p.DisableExpansion = true
	for _, k := range keys {
		if _, _, err := p.Set(k, flat[k]); err != nil {
			return nil, err
		}
	}
	var buf bytes.Buffer
	if _, err := p.Write(&buf, properties.UTF8); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, val := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = stringify(val)
	}
}

// codecRegistry adds the properties extensions to viper's built-in formats.
func codecRegistry() *viper.DefaultCodecRegistry {
	r := viper.NewCodecRegistry()
	for _, ext := range []string{"properties", "props", "prop"} {
		// RegisterCodec only fails on a nil registry.
		_ = r.RegisterCodec(ext, propertiesCodec{})
	}
	return r
}
