package models

import (
	"fmt"
	"strconv"
	"strings"
)

type SelectItem struct {
	Expression string `json:"expression" yaml:"expression"`
	Alias      string `json:"alias,omitempty" yaml:"alias,omitempty"`
}

// Name is the property name the item takes in the result event.
func (i SelectItem) Name() string {
	if i.Alias != "" {
		return i.Alias
	}
	return strings.TrimSpace(i.Expression)
}

// StatementModel is the structured form of a continuous query. Raw statement
// texts are parsed into this form by the engine.
type StatementModel struct {
	InsertInto   string       `json:"insert_into,omitempty" yaml:"insert_into,omitempty"`
	Wildcard     bool         `json:"wildcard,omitempty" yaml:"wildcard,omitempty"`
	Select       []SelectItem `json:"select,omitempty" yaml:"select,omitempty"`
	From         string       `json:"from" yaml:"from"`
	Filter       string       `json:"filter,omitempty" yaml:"filter,omitempty"`
	WindowLength int          `json:"window_length,omitempty" yaml:"window_length,omitempty"`
	Where        string       `json:"where,omitempty" yaml:"where,omitempty"`
	Having       string       `json:"having,omitempty" yaml:"having,omitempty"`
}

func (m StatementModel) Validate() error {
	if strings.TrimSpace(m.From) == "" {
		return fmt.Errorf("from clause cannot be empty")
	}

	if m.Wildcard && len(m.Select) > 0 {
		return fmt.Errorf("wildcard cannot be combined with select items")
	}

	if !m.Wildcard && len(m.Select) == 0 {
		return fmt.Errorf("select clause cannot be empty")
	}

	seen := make(map[string]struct{}, len(m.Select))
	for i, item := range m.Select {
		if strings.TrimSpace(item.Expression) == "" {
			return fmt.Errorf("select item %d has an empty expression", i)
		}
		if _, ok := seen[item.Name()]; ok {
			return fmt.Errorf("duplicate select item %s", item.Name())
		}
		seen[item.Name()] = struct{}{}
	}

	if m.WindowLength < 0 {
		return fmt.Errorf("window length cannot be negative: %d", m.WindowLength)
	}

	return nil
}

// String renders the model as statement text.
func (m StatementModel) String() string {
	var sb strings.Builder

	if m.InsertInto != "" {
		sb.WriteString("insert into ")
		sb.WriteString(m.InsertInto)
		sb.WriteString(" ")
	}

	sb.WriteString("select ")
	if m.Wildcard {
		sb.WriteString("*")
	} else {
		for i, item := range m.Select {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(item.Expression)
			if item.Alias != "" {
				sb.WriteString(" as ")
				sb.WriteString(item.Alias)
			}
		}
	}

	sb.WriteString(" from ")
	sb.WriteString(m.From)
	if m.Filter != "" {
		sb.WriteString("(")
		sb.WriteString(m.Filter)
		sb.WriteString(")")
	}
	if m.WindowLength > 0 {
		sb.WriteString(".win:length(")
		sb.WriteString(strconv.Itoa(m.WindowLength))
		sb.WriteString(")")
	}

	if m.Where != "" {
		sb.WriteString(" where ")
		sb.WriteString(m.Where)
	}
	if m.Having != "" {
		sb.WriteString(" having ")
		sb.WriteString(m.Having)
	}

	return sb.String()
}

// StatementSpec is either a raw statement text or a structured model.
type StatementSpec struct {
	Text  string
	Model *StatementModel
}

func TextStatement(text string) StatementSpec {
	return StatementSpec{Text: text}
}

func ModelStatement(m StatementModel) StatementSpec {
	return StatementSpec{Model: &m}
}

func (s StatementSpec) String() string {
	if s.Model != nil {
		return s.Model.String()
	}
	return s.Text
}
