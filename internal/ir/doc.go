// Package ir provides the foundational types shared by the query compiler,
// the data layer and the document assembler.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal. This keeps ir the foundational
// layer with no circular dependencies.
//
// Key design constraints:
//   - Resource identity is the (type, id) pair, with id always in string form
//   - A Relation distinguishes "not loaded" from "loaded and empty"
//   - Every failure surfaced to a client is an *Error carrying a Code
package ir
