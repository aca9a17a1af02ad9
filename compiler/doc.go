// Package compiler lowers ir modules to textual machine listings.
//
// Process of compilation:
//
//	Intermediate Representation (ir) ->
//	        validate + cfg + dominators ->
//	        select instructions (isel) ->
//	        live-variable analysis (df) ->
//	        interference graph + coloring (regalloc) ->
//	        operand rewrite + spill code ->
//	Machine Listing (text)
//
// The front end producing the IR and the assembler/loader consuming
// the listing live outside this module.
package compiler
