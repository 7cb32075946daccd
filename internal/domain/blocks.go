package domain

import "regexp"

// TextObject — текстовый лист блочной структуры сообщения.
type TextObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// BlockElement — интерактивный элемент блока (кнопка и т.п.).
type BlockElement struct {
	Type     string      `json:"type"`
	Text     *TextObject `json:"text,omitempty"`
	ActionID string      `json:"action_id,omitempty"`
	Value    string      `json:"value,omitempty"`
	URL      string      `json:"url,omitempty"`
	Style    string      `json:"style,omitempty"`
}

// Block — один блок сообщения: заголовок, секция, кнопки, контекст.
// Структура намеренно не привязана к конкретному набору типов блоков,
// рендерер обходит её как дерево и не знает про семантику.
type Block struct {
	Type      string        `json:"type"`
	BlockID   string        `json:"block_id,omitempty"`
	Text      *TextObject   `json:"text,omitempty"`
	Fields    []TextObject  `json:"fields,omitempty"`
	Accessory *BlockElement `json:"accessory,omitempty"`
	Elements  []BlockElement `json:"elements,omitempty"`
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// SubstitutePlaceholders возвращает копию дерева блоков, где каждый токен
// {{name}} в строковых листьях заменён значением из vars. Неизвестное имя
// заменяется пустой строкой. Исходное дерево не изменяется.
func SubstitutePlaceholders(blocks []Block, vars map[string]string) []Block {
	if len(blocks) == 0 {
		return nil
	}
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = substituteBlock(b, vars)
	}
	return out
}

func substituteBlock(b Block, vars map[string]string) Block {
	if b.Text != nil {
		t := substituteText(*b.Text, vars)
		b.Text = &t
	}
	if len(b.Fields) > 0 {
		fields := make([]TextObject, len(b.Fields))
		for i, f := range b.Fields {
			fields[i] = substituteText(f, vars)
		}
		b.Fields = fields
	}
	if b.Accessory != nil {
		a := substituteElement(*b.Accessory, vars)
		b.Accessory = &a
	}
	if len(b.Elements) > 0 {
		elements := make([]BlockElement, len(b.Elements))
		for i, e := range b.Elements {
			elements[i] = substituteElement(e, vars)
		}
		b.Elements = elements
	}
	return b
}

func substituteElement(e BlockElement, vars map[string]string) BlockElement {
	if e.Text != nil {
		t := substituteText(*e.Text, vars)
		e.Text = &t
	}
	e.Value = substituteString(e.Value, vars)
	e.URL = substituteString(e.URL, vars)
	return e
}

func substituteText(t TextObject, vars map[string]string) TextObject {
	t.Text = substituteString(t.Text, vars)
	return t
}

func substituteString(s string, vars map[string]string) string {
	if s == "" {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		return vars[name]
	})
}
