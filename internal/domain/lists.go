package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Link is one entry of a crawled sitemap.
type Link struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// LinkList is an ordered list of links persisted as a JSON text column.
type LinkList []Link

// Value implements driver.Valuer.
func (l LinkList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]Link(l))
	return string(b), err
}

// Scan implements sql.Scanner.
func (l *LinkList) Scan(src any) error {
	return scanJSON(src, (*[]Link)(l))
}

// URLs returns the link URLs in order.
func (l LinkList) URLs() []string {
	out := make([]string, 0, len(l))
	for _, k := range l {
		out = append(out, k.URL)
	}
	return out
}

// Without returns a copy of l without any entry whose URL equals url.
func (l LinkList) Without(url string) LinkList {
	out := make(LinkList, 0, len(l))
	for _, k := range l {
		if k.URL != url {
			out = append(out, k)
		}
	}
	return out
}

// StringList is an ordered string list persisted as a JSON text column.
type StringList []string

// Value implements driver.Valuer.
func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	return string(b), err
}

// Scan implements sql.Scanner.
func (s *StringList) Scan(src any) error {
	return scanJSON(src, (*[]string)(s))
}

// Contains reports whether v is in s.
func (s StringList) Contains(v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Without returns a copy of s with every occurrence of v removed.
func (s StringList) Without(v string) StringList {
	out := make(StringList, 0, len(s))
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func scanJSON(src any, dst any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("unsupported json column type")
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}
