// Package expr implements the choice expression language: JSONPath terms,
// literal values, comparison and boolean operators, and nestable
// "when ... then ... else ..." statements.
//
// Statements compile once into an interpreter tree (a Program) whose
// evaluation is a pure function from an input document to a successor state
// name or literal. Compiled programs serialize to JSON and persist in a
// hash-keyed disk cache, so subsequent constructions of the same choice load
// the artifact instead of re-parsing.
//
// Grammar:
//
//	term      := JSONPath | 'string' | number | list | map | true | false | null | #tag
//	comparison:= term op term            op: gt lt eq neq gte lte contains starts_with ends_with
//	condition := comparison | exist JSONPath | not condition
//	           | condition and condition | condition or condition | (condition)
//	statement := when condition then branch [else branch] | term
//	branch    := statement | term
//
// Operator precedence is fixed: not binds tightest, then and, then or.
// Parentheses group explicitly and are preserved through compilation.
//
// A #tag term resolves against the choice's state reference table at compile
// time; an unknown tag is a compile-time error. Evaluation tries statements
// in order and returns the first produced value; a statement that fails at
// run time (for example, an ordering comparison against a missing path) is
// skipped so a later default can still match. A JSONPath with no match
// yields the Absent sentinel, which exist distinguishes from an explicit
// null.
package expr
