// Package admin implements the operator commands that act on filed
// headers: research and series re-QC, template-exam pinning, research
// summaries and template inspection.
//
// Every operation validates its target before mutating anything so a typo in
// an ID reports services.ErrNotFound instead of silently matching nothing.
package admin
