package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the hashing AST serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// every cached module key.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing content hashes.
const HashVersion byte = 1

// AST node type tags. Each tag uniquely identifies a node kind in the
// serialized byte stream.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	// Literal values
	TagIntLiteral    byte = 0x01
	TagFloatLiteral  byte = 0x02
	TagStringLiteral byte = 0x03
	TagBoolLiteral   byte = 0x04
	TagNullLiteral   byte = 0x05

	// Variable references
	TagLocalRef  byte = 0x08 // parameter slot
	TagGlobalRef byte = 0x09 // reactive variable by name

	// Expressions
	TagBinary  byte = 0x10
	TagUnary   byte = 0x11
	TagTernary byte = 0x12
	TagCall    byte = 0x13

	// Statements
	TagAssign         byte = 0x18
	TagCompoundAssign byte = 0x19
	TagIf             byte = 0x1A
	TagWhile          byte = 0x1B
	TagCallStmt       byte = 0x1C
	TagReturn         byte = 0x1D
	TagBreak          byte = 0x1E
	TagContinue       byte = 0x1F

	// Structure
	TagFunction byte = 0x20
	TagBinding  byte = 0x21
	TagVariable byte = 0x22
	TagProgram  byte = 0x23

	// Whole-document fingerprint
	TagSource byte = 0x30

	// Reserved 0xFE-0xFF
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagIntLiteral, TagFloatLiteral, TagStringLiteral, TagBoolLiteral, TagNullLiteral,
	TagLocalRef, TagGlobalRef,
	TagBinary, TagUnary, TagTernary, TagCall,
	TagAssign, TagCompoundAssign, TagIf, TagWhile,
	TagCallStmt, TagReturn, TagBreak, TagContinue,
	TagFunction, TagBinding, TagVariable, TagProgram,
	TagSource,
}
