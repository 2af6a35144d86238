package binary

import (
	"fmt"
	"strings"
)

// TokenKind enumerates the shapes a SignatureToken can take.
type TokenKind uint8

const (
	TokenBool TokenKind = iota + 1
	TokenU8
	TokenU16
	TokenU32
	TokenU64
	TokenU128
	TokenU256
	TokenAddress
	TokenSigner
	TokenVector
	TokenReference
	TokenMutableReference
	TokenFunction
	TokenStruct
	TokenStructInstantiation
	TokenTypeParameter
)

func (k TokenKind) String() string {
	switch k {
	case TokenBool:
		return "bool"
	case TokenU8:
		return "u8"
	case TokenU16:
		return "u16"
	case TokenU32:
		return "u32"
	case TokenU64:
		return "u64"
	case TokenU128:
		return "u128"
	case TokenU256:
		return "u256"
	case TokenAddress:
		return "address"
	case TokenSigner:
		return "signer"
	case TokenVector:
		return "vector"
	case TokenReference:
		return "reference"
	case TokenMutableReference:
		return "mutable reference"
	case TokenFunction:
		return "function"
	case TokenStruct:
		return "struct"
	case TokenStructInstantiation:
		return "struct instantiation"
	case TokenTypeParameter:
		return "type parameter"
	default:
		return fmt.Sprintf("TokenKind(%d)", k)
	}
}

// SignatureToken is a serialized type expression.
//
// Elem is set for vectors and references. Struct is set for struct and struct
// instantiation tokens, with TypeArgs holding the instantiation. Args, Results and
// Abilities describe function types. TypeParam is the index of a type parameter.
type SignatureToken struct {
	Kind      TokenKind
	Elem      *SignatureToken    `msgpack:",omitempty"`
	Struct    StructHandleIndex  `msgpack:",omitempty"`
	TypeArgs  []SignatureToken   `msgpack:",omitempty"`
	Args      []SignatureToken   `msgpack:",omitempty"`
	Results   []SignatureToken   `msgpack:",omitempty"`
	Abilities AbilitySet         `msgpack:",omitempty"`
	TypeParam TypeParameterIndex `msgpack:",omitempty"`
}

// Token helpers ---------------------------------------------------------------

// Prim describes a primitive token.
func Prim(kind TokenKind) SignatureToken {
	return SignatureToken{Kind: kind}
}

// Vector describes vector<elem>.
func Vector(elem SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokenVector, Elem: &elem}
}

// Reference describes &elem or &mut elem.
func Reference(elem SignatureToken, mutable bool) SignatureToken {
	kind := TokenReference
	if mutable {
		kind = TokenMutableReference
	}
	return SignatureToken{Kind: kind, Elem: &elem}
}

// Struct describes a non-generic struct reference.
func Struct(idx StructHandleIndex) SignatureToken {
	return SignatureToken{Kind: TokenStruct, Struct: idx}
}

// StructInst describes a generic struct applied to type arguments.
func StructInst(idx StructHandleIndex, args ...SignatureToken) SignatureToken {
	return SignatureToken{Kind: TokenStructInstantiation, Struct: idx, TypeArgs: args}
}

// TypeParam describes a reference to the declaring entity's type parameter.
func TypeParam(idx TypeParameterIndex) SignatureToken {
	return SignatureToken{Kind: TokenTypeParameter, TypeParam: idx}
}

// Function describes a function type.
func Function(args, results []SignatureToken, abilities AbilitySet) SignatureToken {
	return SignatureToken{Kind: TokenFunction, Args: args, Results: results, Abilities: abilities}
}

// Preorder visits tok and every nested token, parents first. Returning false from
// visit stops the walk.
func (tok *SignatureToken) Preorder(visit func(*SignatureToken) bool) bool {
	if tok == nil {
		return true
	}
	if !visit(tok) {
		return false
	}
	switch tok.Kind {
	case TokenVector, TokenReference, TokenMutableReference:
		return tok.Elem.Preorder(visit)
	case TokenStructInstantiation:
		for i := range tok.TypeArgs {
			if !tok.TypeArgs[i].Preorder(visit) {
				return false
			}
		}
	case TokenFunction:
		for i := range tok.Args {
			if !tok.Args[i].Preorder(visit) {
				return false
			}
		}
		for i := range tok.Results {
			if !tok.Results[i].Preorder(visit) {
				return false
			}
		}
	}
	return true
}

func (tok SignatureToken) String() string {
	switch tok.Kind {
	case TokenVector:
		return "vector<" + elemString(tok.Elem) + ">"
	case TokenReference:
		return "&" + elemString(tok.Elem)
	case TokenMutableReference:
		return "&mut " + elemString(tok.Elem)
	case TokenStruct:
		return fmt.Sprintf("struct#%d", tok.Struct)
	case TokenStructInstantiation:
		return fmt.Sprintf("struct#%d<%s>", tok.Struct, joinTokens(tok.TypeArgs))
	case TokenTypeParameter:
		return fmt.Sprintf("T%d", tok.TypeParam)
	case TokenFunction:
		return fmt.Sprintf("|%s|(%s)%s", joinTokens(tok.Args), joinTokens(tok.Results), tok.Abilities)
	default:
		return tok.Kind.String()
	}
}

func elemString(tok *SignatureToken) string {
	if tok == nil {
		return "<nil>"
	}
	return tok.String()
}

func joinTokens(toks []SignatureToken) string {
	parts := make([]string, len(toks))
	for i := range toks {
		parts[i] = toks[i].String()
	}
	return strings.Join(parts, ", ")
}

// Signature is an ordered list of tokens, e.g. a parameter list.
type Signature struct {
	Tokens []SignatureToken
}

// Len returns the number of tokens.
func (s Signature) Len() int {
	return len(s.Tokens)
}
