// Package expr implements the small sandboxed expression language used by
// workflow conditions, loop termination checks and event exit predicates.
//
// Expressions are compiled once and evaluated against a variable map with no
// fixed schema. Supported syntax:
//
//	literals      42, 0.8, "text", 'text', true, false, null
//	variables     input, input.score, results.review.0
//	logical       !, &&, ||  (aliases: not, and, or)
//	comparison    ==, !=, <, <=, >, >=, in
//	arithmetic    +, -, *, /, %   (+ concatenates strings)
//	functions     len, contains, lower, upper, startsWith, endsWith, str, num
//
// There is no assignment, no loops and no access to host functions, so an
// expression can only observe the variables it is given.
package expr
