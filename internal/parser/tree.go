package parser

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Element is one line of a running configuration together with the lines
// indented beneath it.
type Element struct {
	Text     string
	Children []*Element

	indent int
}

// Fields splits the element text on whitespace.
func (e *Element) Fields() []string {
	return strings.Fields(e.Text)
}

// Tree is a parsed ASA "show running-config" dump.
type Tree struct {
	Elements []*Element
}

// ParseTree builds the parent/child structure of a configuration dump from
// its indentation. Blank lines and "!" separators are dropped.
func ParseTree(reader io.Reader) (*Tree, error) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	tree := &Tree{}
	var stack []*Element
	for scanner.Scan() {
		raw := strings.TrimRight(scanner.Text(), " \t\r")
		text := strings.TrimSpace(raw)
		if text == "" || text == "!" {
			continue
		}
		elem := &Element{Text: text, indent: len(raw) - len(strings.TrimLeft(raw, " \t"))}

		for len(stack) > 0 && stack[len(stack)-1].indent >= elem.indent {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			tree.Elements = append(tree.Elements, elem)
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, elem)
		}
		stack = append(stack, elem)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return tree, nil
}

// FindObjects returns the top-level elements whose leading tokens equal the
// given keywords.
func (t *Tree) FindObjects(keywords ...string) []*Element {
	var result []*Element
	for _, elem := range t.Elements {
		if hasPrefixTokens(elem.Fields(), keywords) {
			result = append(result, elem)
		}
	}
	return result
}

func hasPrefixTokens(fields, keywords []string) bool {
	if len(fields) < len(keywords) {
		return false
	}
	for i, kw := range keywords {
		if fields[i] != kw {
			return false
		}
	}
	return true
}
