// Package upsert files a normalized header into the document hierarchy.
//
// The order is fixed: Research, Series, then either the template branch
// (TemplateExam, Template, TemplateHeader) or the subject branch (Study,
// Acquisition, Image). Every step but the final Image append is
// find-or-create, so replaying a message never duplicates parents.
package upsert
