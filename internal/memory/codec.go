package memory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"memchat/internal/models"

	"gopkg.in/yaml.v3"
)

var ErrNotObject = errors.New("payload is not a JSON object")

type rawEntry struct {
	key   string
	value json.RawMessage
}

// orderedObject splits a JSON object into its members, keeping the order in
// which they appear in data.
func orderedObject(data []byte) ([]rawEntry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	var entries []rawEntry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		entries = append(entries, rawEntry{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return entries, nil
}

// MarshalJSON writes the store as domain -> docId -> document, in store order.
func (s *Store) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.domains {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(name)
		buf.Write(key)
		buf.WriteString(":{")

		d := s.byName[name]
		for j, id := range d.ids {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, _ := json.Marshal(id)
			body, err := json.Marshal(d.docs[id])
			if err != nil {
				return nil, fmt.Errorf("failed to encode document %s/%s: %w", name, id, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(body)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the contents of s with the decoded payload. The
// clock and logger of s are kept.
func (s *Store) UnmarshalJSON(data []byte) error {
	domains, err := orderedObject(data)
	if err != nil {
		return fmt.Errorf("failed to decode store: %w", err)
	}

	fresh := NewStore()
	if s.now != nil {
		fresh.now = s.now
	}
	if s.logger != nil {
		fresh.logger = s.logger
	}

	for _, domain := range domains {
		docs, err := orderedObject(domain.value)
		if err != nil {
			return fmt.Errorf("failed to decode domain %q: %w", domain.key, err)
		}
		d := fresh.ensure(domain.key)
		for _, entry := range docs {
			var doc models.KnowledgeDocument
			if err := json.Unmarshal(entry.value, &doc); err != nil {
				return fmt.Errorf("failed to decode document %s/%s: %w", domain.key, entry.key, err)
			}
			if doc.ID == "" {
				doc.ID = entry.key
			}
			if _, ok := d.docs[entry.key]; !ok {
				d.ids = append(d.ids, entry.key)
			}
			d.docs[entry.key] = &doc
		}
	}

	*s = *fresh
	return nil
}

// Decode parses a store payload.
func Decode(data []byte, opts ...Option) (*Store, error) {
	s := NewStore(opts...)
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return s, nil
}

// Export renders the whole store as two-space indented JSON.
func (s *Store) Export() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// MarshalYAML keeps store order, which a plain map would lose.
func (s *Store) MarshalYAML() (interface{}, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range s.domains {
		docs := &yaml.Node{Kind: yaml.MappingNode}
		d := s.byName[name]
		for _, id := range d.ids {
			body := &yaml.Node{}
			if err := body.Encode(d.docs[id]); err != nil {
				return nil, err
			}
			docs.Content = append(docs.Content, scalar(id), body)
		}
		root.Content = append(root.Content, scalar(name), docs)
	}
	return root, nil
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value}
}
