package binary

// View is a read-only accessor over either a module or a script.
//
// Accessors for pools only a module can have return ok == false for scripts; callers
// treat that as an empty pool.
type View interface {
	Version() uint32
	ModuleHandles() []ModuleHandle
	StructHandles() []StructHandle
	FunctionHandles() []FunctionHandle
	FunctionInstantiations() []FunctionInstantiation
	Signatures() []Signature
	Identifiers() []string
	AddressIdentifiers() []AccountAddress
	ConstantPool() []Constant

	// SelfHandle returns the module's own handle index.
	SelfHandle() (ModuleHandleIndex, bool)
	StructDefs() ([]StructDefinition, bool)
	FunctionDefs() ([]FunctionDefinition, bool)
	FieldHandles() ([]FieldHandle, bool)
	FriendDecls() ([]ModuleHandle, bool)
	StructDefInstantiations() ([]StructDefInstantiation, bool)
	FieldInstantiations() ([]FieldInstantiation, bool)
	StructVariantHandles() ([]StructVariantHandle, bool)
	StructVariantInstantiations() ([]StructVariantInstantiation, bool)
	VariantFieldHandles() ([]VariantFieldHandle, bool)
	VariantFieldInstantiations() ([]VariantFieldInstantiation, bool)
}

// ModuleView adapts a CompiledModule to View.
type ModuleView struct{ M *CompiledModule }

// ScriptView adapts a CompiledScript to View.
type ScriptView struct{ S *CompiledScript }

var (
	_ View = ModuleView{}
	_ View = ScriptView{}
)

func (v ModuleView) Version() uint32 {
	return v.M.Version
}

func (v ModuleView) ModuleHandles() []ModuleHandle {
	return v.M.ModuleHandles
}

func (v ModuleView) StructHandles() []StructHandle {
	return v.M.StructHandles
}

func (v ModuleView) FunctionHandles() []FunctionHandle {
	return v.M.FunctionHandles
}

func (v ModuleView) FunctionInstantiations() []FunctionInstantiation {
	return v.M.FunctionInstantiations
}

func (v ModuleView) Signatures() []Signature {
	return v.M.Signatures
}

func (v ModuleView) Identifiers() []string {
	return v.M.Identifiers
}

func (v ModuleView) AddressIdentifiers() []AccountAddress {
	return v.M.AddressIdentifiers
}

func (v ModuleView) ConstantPool() []Constant {
	return v.M.ConstantPool
}

func (v ModuleView) SelfHandle() (ModuleHandleIndex, bool) {
	return v.M.SelfHandle, true
}

func (v ModuleView) StructDefs() ([]StructDefinition, bool) {
	return v.M.StructDefs, true
}

func (v ModuleView) FunctionDefs() ([]FunctionDefinition, bool) {
	return v.M.FunctionDefs, true
}

func (v ModuleView) FieldHandles() ([]FieldHandle, bool) {
	return v.M.FieldHandles, true
}

func (v ModuleView) FriendDecls() ([]ModuleHandle, bool) {
	return v.M.FriendDecls, true
}

func (v ModuleView) FieldInstantiations() ([]FieldInstantiation, bool) {
	return v.M.FieldInstantiations, true
}

func (v ModuleView) StructDefInstantiations() ([]StructDefInstantiation, bool) {
	return v.M.StructDefInstantiations, true
}

func (v ModuleView) StructVariantHandles() ([]StructVariantHandle, bool) {
	return v.M.StructVariantHandles, true
}

func (v ModuleView) StructVariantInstantiations() ([]StructVariantInstantiation, bool) {
	return v.M.StructVariantInstantiations, true
}

func (v ModuleView) VariantFieldHandles() ([]VariantFieldHandle, bool) {
	return v.M.VariantFieldHandles, true
}

func (v ModuleView) VariantFieldInstantiations() ([]VariantFieldInstantiation, bool) {
	return v.M.VariantFieldInstantiations, true
}

func (v ScriptView) Version() uint32 {
	return v.S.Version
}

func (v ScriptView) ModuleHandles() []ModuleHandle {
	return v.S.ModuleHandles
}

func (v ScriptView) StructHandles() []StructHandle {
	return v.S.StructHandles
}

func (v ScriptView) FunctionHandles() []FunctionHandle {
	return v.S.FunctionHandles
}

func (v ScriptView) FunctionInstantiations() []FunctionInstantiation {
	return v.S.FunctionInstantiations
}

func (v ScriptView) Signatures() []Signature {
	return v.S.Signatures
}

func (v ScriptView) Identifiers() []string {
	return v.S.Identifiers
}

func (v ScriptView) AddressIdentifiers() []AccountAddress {
	return v.S.AddressIdentifiers
}

func (v ScriptView) ConstantPool() []Constant {
	return v.S.ConstantPool
}

func (v ScriptView) SelfHandle() (ModuleHandleIndex, bool) {
	return 0, false
}

func (v ScriptView) StructDefs() ([]StructDefinition, bool) {
	return nil, false
}

func (v ScriptView) FunctionDefs() ([]FunctionDefinition, bool) {
	return nil, false
}

func (v ScriptView) FieldHandles() ([]FieldHandle, bool) {
	return nil, false
}

func (v ScriptView) FriendDecls() ([]ModuleHandle, bool) {
	return nil, false
}

func (v ScriptView) FieldInstantiations() ([]FieldInstantiation, bool) {
	return nil, false
}

func (v ScriptView) StructDefInstantiations() ([]StructDefInstantiation, bool) {
	return nil, false
}

func (v ScriptView) StructVariantHandles() ([]StructVariantHandle, bool) {
	return nil, false
}

func (v ScriptView) StructVariantInstantiations() ([]StructVariantInstantiation, bool) {
	return nil, false
}

func (v ScriptView) VariantFieldHandles() ([]VariantFieldHandle, bool) {
	return nil, false
}

func (v ScriptView) VariantFieldInstantiations() ([]VariantFieldInstantiation, bool) {
	return nil, false
}

// Helpers shared by the checkers. They assume bounds have been verified.

// ModuleIDForHandle resolves a module handle within v.
func ModuleIDForHandle(v View, h ModuleHandle) ModuleID {
	return ModuleID{Address: v.AddressIdentifiers()[h.Address], Name: v.Identifiers()[h.Name]}
}

// SelfID returns the id of a module view; ok is false for scripts.
func SelfID(v View) (ModuleID, bool) {
	self, ok := v.SelfHandle()
	if !ok {
		return ModuleID{}, false
	}
	return ModuleIDForHandle(v, v.ModuleHandles()[self]), true
}

// IsSelfHandle reports whether idx is the view's own module handle.
func IsSelfHandle(v View, idx ModuleHandleIndex) bool {
	self, ok := v.SelfHandle()
	return ok && self == idx
}

// SignatureAt returns the signature at idx.
func SignatureAt(v View, idx SignatureIndex) *Signature {
	return &v.Signatures()[idx]
}

// IdentifierAt returns the identifier at idx.
func IdentifierAt(v View, idx IdentifierIndex) string {
	return v.Identifiers()[idx]
}
