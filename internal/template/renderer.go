// Package template implements the placeholder language used by notification
// email templates: {{name}} scalar substitution, {{#if NAME}}...{{/if}}
// conditional blocks and {{#each KEY}}...{{/each}} iteration.
//
// Render is total: malformed markup and missing variables never produce an
// error, they render literally. This makes it safe to call from live
// preview surfaces with partially populated variable bags.
package template

import "regexp"

// Block and token grammar. Keys are word characters only; block bodies are
// matched non-greedily with (?s) so they may span lines. An opening tag
// without its closing tag matches nothing and stays literal.
var (
	eachBlockRe = regexp.MustCompile(`(?s)\{\{#each\s+(\w+)\s*\}\}(.*?)\{\{/each\}\}`)
	ifBlockRe   = regexp.MustCompile(`(?s)\{\{#if\s+(\w+)\s*\}\}(.*?)\{\{/if\}\}`)
	tokenRe     = regexp.MustCompile(`\{\{(\w+)\}\}`)
)

// Render applies the variable bag to the template and returns the result.
//
// Passes run in a fixed order: iteration, then conditionals, then scalar
// substitution. Iteration must come first so item fields resolve against
// item-local context rather than the outer bag, and conditionals must run
// across the whole document after iteration so an {{#if}} inside an
// expanded {{#each}} body is still honored. The token regex cannot match
// block delimiters ('#' and '/' are not word characters), so unresolved
// block markup survives every pass unchanged.
func Render(tmpl string, vars VariableBag) string {
	out := expandEach(tmpl, vars)
	out = resolveConditionals(out, vars)
	return substituteScalars(out, vars)
}

// expandEach replaces every well-formed {{#each KEY}} block. A KEY that is
// missing, bound to a scalar, or bound to an empty sequence removes the
// block entirely. Otherwise the body is rendered once per item, with
// {{field}} tokens filled from that item; fields the item lacks stay
// literal.
func expandEach(tmpl string, vars VariableBag) string {
	return eachBlockRe.ReplaceAllStringFunc(tmpl, func(block string) string {
		m := eachBlockRe.FindStringSubmatch(block)
		key, body := m[1], m[2]

		seq, ok := vars[key].(Items)
		if !ok || len(seq) == 0 {
			return ""
		}

		var out []byte
		for _, item := range seq {
			out = append(out, renderItem(body, item)...)
		}
		return string(out)
	})
}

func renderItem(body string, item Item) string {
	return tokenRe.ReplaceAllStringFunc(body, func(token string) string {
		field := tokenRe.FindStringSubmatch(token)[1]
		v, ok := item[field]
		if !ok {
			return token
		}
		return coerce(v)
	})
}

// resolveConditionals keeps or drops every well-formed {{#if NAME}} block.
// A kept block contributes its body unchanged; tokens inside it are left
// for the scalar pass.
func resolveConditionals(tmpl string, vars VariableBag) string {
	return ifBlockRe.ReplaceAllStringFunc(tmpl, func(block string) string {
		m := ifBlockRe.FindStringSubmatch(block)
		name, body := m[1], m[2]

		v, ok := vars[name]
		if !truthy(v, ok) {
			return ""
		}
		return body
	})
}

// substituteScalars replaces each remaining {{name}} token bound to a
// scalar in the bag. Sequences are consumed only by the iteration pass and
// never leak into scalar output; unknown names stay literal.
func substituteScalars(tmpl string, vars VariableBag) string {
	return tokenRe.ReplaceAllStringFunc(tmpl, func(token string) string {
		name := tokenRe.FindStringSubmatch(token)[1]
		s, ok := vars[name].(Scalar)
		if !ok {
			return token
		}
		return coerce(s.V)
	})
}
