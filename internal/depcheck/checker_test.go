package depcheck_test

import (
	"errors"
	"testing"

	"movecheck/internal/binary"
	"movecheck/internal/depcheck"
	"movecheck/internal/testkit"
	"movecheck/internal/vmerr"
)

var (
	none  = binary.EmptyAbilities
	store = binary.NewAbilitySet(binary.AbilityStore)
	copyA = binary.NewAbilitySet(binary.AbilityCopy)
	u64   = binary.Prim(binary.TokenU64)
)

// coin builds 0x1::coin:
//
//	struct Coin<phantom T> has store { value: u64 }
//	struct Box<T: copy> has store { v: T }
//	public fun value<T>(c: &Coin<T>): u64
//	friend fun mint<T>(v: u64): Coin<T>
//	fun burn<T>(c: Coin<T>)
//	public fun apply(f: |u64| has copy)
//	public(persistent) fun hook()
//	friend fun legacy()
//	public entry fun run()
func coin(version uint32, friends ...string) *binary.CompiledModule {
	b := testkit.NewModule(1, "coin")
	b.M.Version = version
	c := b.HandleOf(b.GenericStruct("Coin", store, []binary.StructTypeParameter{{IsPhantom: true}},
		testkit.Field{Name: "value", Type: u64}))
	b.GenericStruct("Box", store, []binary.StructTypeParameter{{Constraints: copyA}},
		testkit.Field{Name: "v", Type: binary.TypeParam(0)})
	coinT := binary.StructInst(c, binary.TypeParam(0))
	oneParam := []binary.AbilitySet{none}

	b.Function("value", binary.VisibilityPublic, []binary.SignatureToken{binary.Reference(coinT, false)},
		[]binary.SignatureToken{u64}, oneParam)
	b.Function("mint", binary.VisibilityFriend, []binary.SignatureToken{u64}, []binary.SignatureToken{coinT}, oneParam)
	b.Function("burn", binary.VisibilityPrivate, []binary.SignatureToken{coinT}, nil, oneParam)
	b.Function("apply", binary.VisibilityPublic,
		[]binary.SignatureToken{binary.Function([]binary.SignatureToken{u64}, nil, copyA)}, nil, nil)
	hook := b.Function("hook", binary.VisibilityPublic, nil, nil, nil)
	b.M.FunctionHandles[b.M.FunctionDefs[hook].Function].Attributes = []binary.FunctionAttribute{binary.AttributePersistent}
	b.Function("legacy", binary.VisibilityFriend, nil, nil, nil)
	run := b.Function("run", binary.VisibilityPublic, nil, nil, nil, binary.Op(binary.OpRet))
	b.M.FunctionDefs[run].IsEntry = true
	for _, f := range friends {
		b.Friend(2, f)
	}
	return b.M
}

// importer starts 0x2::user with a handle for 0x1::coin and its Coin struct.
func importer() (*testkit.ModuleBuilder, binary.ModuleHandleIndex, binary.StructHandleIndex) {
	b := testkit.NewModule(2, "user")
	mh := b.ModuleHandle(1, "coin")
	c := b.StructHandle(mh, "Coin", store, binary.StructTypeParameter{IsPhantom: true})
	return b, mh, c
}

func wantCode(t *testing.T, err error, want vmerr.Code) {
	t.Helper()
	if want == vmerr.UnknownCode {
		if err != nil {
			t.Fatalf("expected success, got %v", err)
		}
		return
	}
	if got := vmerr.CodeOf(err); got != want {
		t.Fatalf("expected %s, got %v", want, err)
	}
}

func TestVerifyModule_CompatibleImports(t *testing.T) {
	b, mh, c := importer()
	coinT := binary.StructInst(c, binary.TypeParam(0))
	b.FunctionHandle(mh, "value", []binary.SignatureToken{binary.Reference(coinT, false)},
		[]binary.SignatureToken{u64}, []binary.AbilitySet{none})
	b.FunctionHandle(mh, "apply", []binary.SignatureToken{binary.Function([]binary.SignatureToken{u64}, nil, copyA)},
		nil, nil)

	wantCode(t, depcheck.VerifyModule(b.M, []*binary.CompiledModule{coin(binary.VersionMax)}), vmerr.UnknownCode)
}

func TestVerifyModule_MissingDependency(t *testing.T) {
	b, _, _ := importer()
	b.ModuleHandle(3, "ghost")
	err := depcheck.VerifyModule(b.M, []*binary.CompiledModule{coin(binary.VersionMax)})
	wantCode(t, err, vmerr.MissingDependency)

	var located *vmerr.Error
	if !errors.As(err, &located) || located.Location.Module.Name != "user" {
		t.Fatalf("expected error located at 0x2::user, got %v", err)
	}
}

func TestVerifyModule_DependencySet(t *testing.T) {
	t.Run("duplicate", func(t *testing.T) {
		b, _, _ := importer()
		err := depcheck.VerifyModule(b.M, []*binary.CompiledModule{coin(binary.VersionMax), coin(binary.VersionMax)})
		wantCode(t, err, vmerr.LinkerError)
	})
	t.Run("self is ignored", func(t *testing.T) {
		b, _, _ := importer()
		self := testkit.EmptyModuleAt(2, "user")
		err := depcheck.VerifyModule(b.M, []*binary.CompiledModule{self, coin(binary.VersionMax)})
		wantCode(t, err, vmerr.UnknownCode)
	})
}

func TestVerifyModule_StructAbilities(t *testing.T) {
	tests := []struct {
		name      string
		abilities binary.AbilitySet
		want      vmerr.Code
	}{
		{"same", store, vmerr.UnknownCode},
		{"fewer", none, vmerr.UnknownCode},
		{"extra key", binary.NewAbilitySet(binary.AbilityStore, binary.AbilityKey), vmerr.TypeMismatch},
		{"extra copy", copyA, vmerr.TypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testkit.NewModule(2, "user")
			mh := b.ModuleHandle(1, "coin")
			b.StructHandle(mh, "Coin", tt.abilities, binary.StructTypeParameter{IsPhantom: true})
			wantCode(t, depcheck.VerifyModule(b.M, []*binary.CompiledModule{coin(binary.VersionMax)}), tt.want)
		})
	}
}

func TestVerifyModule_StructTypeParameters(t *testing.T) {
	dropCopy := binary.NewAbilitySet(binary.AbilityCopy, binary.AbilityDrop)
	tests := []struct {
		name   string
		strct  string
		params []binary.StructTypeParameter
		want   vmerr.Code
	}{
		{"phantom dropped", "Coin", []binary.StructTypeParameter{{}}, vmerr.UnknownCode},
		{"phantom added", "Box", []binary.StructTypeParameter{{IsPhantom: true, Constraints: copyA}}, vmerr.TypeMismatch},
		{"stronger constraint", "Box", []binary.StructTypeParameter{{Constraints: dropCopy}}, vmerr.UnknownCode},
		{"weaker constraint", "Box", []binary.StructTypeParameter{{}}, vmerr.TypeMismatch},
		{"arity", "Box", nil, vmerr.TypeMismatch},
		{"unknown struct", "Nope", nil, vmerr.LookupFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := testkit.NewModule(2, "user")
			mh := b.ModuleHandle(1, "coin")
			b.StructHandle(mh, tt.strct, store, tt.params...)
			wantCode(t, depcheck.VerifyModule(b.M, []*binary.CompiledModule{coin(binary.VersionMax)}), tt.want)
		})
	}
}

func TestVerifyModule_FunctionVisibility(t *testing.T) {
	tests := []struct {
		name    string
		fn      string
		friends []string
		want    vmerr.Code
	}{
		{"private", "burn", nil, vmerr.LookupFailed},
		{"friend from stranger", "mint", nil, vmerr.LookupFailed},
		{"friend from friend", "mint", []string{"user"}, vmerr.UnknownCode},
		{"unknown", "steal", nil, vmerr.LookupFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, mh, c := importer()
			coinT := binary.StructInst(c, binary.TypeParam(0))
			params, results := []binary.SignatureToken{coinT}, []binary.SignatureToken(nil)
			if tt.fn == "mint" {
				params, results = []binary.SignatureToken{u64}, []binary.SignatureToken{coinT}
			}
			b.FunctionHandle(mh, tt.fn, params, results, []binary.AbilitySet{none})
			err := depcheck.VerifyModule(b.M, []*binary.CompiledModule{coin(binary.VersionMax, tt.friends...)})
			wantCode(t, err, tt.want)
		})
	}
}

func TestVerifyModule_SignatureMismatch(t *testing.T) {
	tests := []struct {
		name    string
		params  func(c, fake binary.StructHandleIndex) []binary.SignatureToken
		results []binary.SignatureToken
		tparams []binary.AbilitySet
	}{
		{
			name: "result kind",
			params: func(c, _ binary.StructHandleIndex) []binary.SignatureToken {
				return []binary.SignatureToken{binary.Reference(binary.StructInst(c, binary.TypeParam(0)), false)}
			},
			results: []binary.SignatureToken{binary.Prim(binary.TokenU8)},
			tparams: []binary.AbilitySet{none},
		},
		{
			name: "mutable reference",
			params: func(c, _ binary.StructHandleIndex) []binary.SignatureToken {
				return []binary.SignatureToken{binary.Reference(binary.StructInst(c, binary.TypeParam(0)), true)}
			},
			results: []binary.SignatureToken{u64},
			tparams: []binary.AbilitySet{none},
		},
		{
			name: "struct from another module",
			params: func(_, fake binary.StructHandleIndex) []binary.SignatureToken {
				return []binary.SignatureToken{binary.Reference(binary.StructInst(fake, binary.TypeParam(0)), false)}
			},
			results: []binary.SignatureToken{u64},
			tparams: []binary.AbilitySet{none},
		},
		{
			name: "type parameter position",
			params: func(c, _ binary.StructHandleIndex) []binary.SignatureToken {
				return []binary.SignatureToken{binary.Reference(binary.StructInst(c, binary.TypeParam(1)), false)}
			},
			results: []binary.SignatureToken{u64},
			tparams: []binary.AbilitySet{none, none},
		},
		{
			name: "type parameter count",
			params: func(c, _ binary.StructHandleIndex) []binary.SignatureToken {
				return []binary.SignatureToken{binary.Reference(binary.StructInst(c, binary.TypeParam(0)), false)}
			},
			results: []binary.SignatureToken{u64},
			tparams: nil,
		},
		{
			name: "extra parameter",
			params: func(c, _ binary.StructHandleIndex) []binary.SignatureToken {
				return []binary.SignatureToken{binary.Reference(binary.StructInst(c, binary.TypeParam(0)), false), u64}
			},
			results: []binary.SignatureToken{u64},
			tparams: []binary.AbilitySet{none},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, mh, c := importer()
			otherMH := b.ModuleHandle(1, "other")
			fake := b.StructHandle(otherMH, "Coin", store, binary.StructTypeParameter{IsPhantom: true})
			b.FunctionHandle(mh, "value", tt.params(c, fake), tt.results, tt.tparams)

			other := testkit.NewModule(1, "other")
			other.GenericStruct("Coin", store, []binary.StructTypeParameter{{IsPhantom: true}})
			deps := []*binary.CompiledModule{coin(binary.VersionMax), other.M}
			wantCode(t, depcheck.VerifyModule(b.M, deps), vmerr.TypeMismatch)
		})
	}
}

func TestVerifyModule_FunctionTypeAbilitiesMustBeEqual(t *testing.T) {
	for _, abilities := range []binary.AbilitySet{none, binary.NewAbilitySet(binary.AbilityCopy, binary.AbilityDrop)} {
		b, mh, _ := importer()
		b.FunctionHandle(mh, "apply", []binary.SignatureToken{binary.Function([]binary.SignatureToken{u64}, nil, abilities)},
			nil, nil)
		wantCode(t, depcheck.VerifyModule(b.M, []*binary.CompiledModule{coin(binary.VersionMax)}), vmerr.TypeMismatch)
	}
}

func TestVerifyModule_Attributes(t *testing.T) {
	persistent := []binary.FunctionAttribute{binary.AttributePersistent}
	tests := []struct {
		name  string
		fn    string
		attrs []binary.FunctionAttribute
		want  vmerr.Code
	}{
		{"declared on both", "hook", persistent, vmerr.UnknownCode},
		{"none imported", "hook", nil, vmerr.UnknownCode},
		{"public counts as persistent", "apply", persistent, vmerr.UnknownCode},
		{"friend is not persistent", "legacy", persistent, vmerr.LinkerError},
		{"module lock not declared", "apply", []binary.FunctionAttribute{binary.AttributeModuleLock}, vmerr.LinkerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, mh, _ := importer()
			var params []binary.SignatureToken
			if tt.fn == "apply" {
				params = []binary.SignatureToken{binary.Function([]binary.SignatureToken{u64}, nil, copyA)}
			}
			h := b.FunctionHandle(mh, tt.fn, params, nil, nil)
			b.M.FunctionHandles[h].Attributes = tt.attrs
			err := depcheck.VerifyModule(b.M, []*binary.CompiledModule{coin(binary.VersionMax, "user")})
			wantCode(t, err, tt.want)
		})
	}
}

func TestVerifyModule_LegacyScriptVisibility(t *testing.T) {
	build := func(version uint32, callerEntry bool) *binary.CompiledModule {
		b, mh, _ := importer()
		b.M.Version = version
		run := b.FunctionHandle(mh, "run", nil, nil, nil)
		caller := b.Function("caller", binary.VisibilityPublic, nil, nil, nil,
			binary.Op(binary.OpNop),
			binary.OpIdx(binary.OpCall, uint16(run)),
			binary.Op(binary.OpRet),
		)
		b.M.FunctionDefs[caller].IsEntry = callerEntry
		return b.M
	}

	m := build(binary.Version5-1, false)
	err := depcheck.VerifyModule(m, []*binary.CompiledModule{coin(binary.Version5 - 1)})
	wantCode(t, err, vmerr.CalledScriptVisibleFromNonScriptVisible)
	var located *vmerr.Error
	if !errors.As(err, &located) || len(located.Offsets) != 1 || located.Offsets[0].Offset != 1 {
		t.Fatalf("expected offset 1, got %v", err)
	}

	wantCode(t, depcheck.VerifyModule(build(binary.Version5-1, true),
		[]*binary.CompiledModule{coin(binary.Version5 - 1)}), vmerr.UnknownCode)
	wantCode(t, depcheck.VerifyModule(build(binary.Version5, false),
		[]*binary.CompiledModule{coin(binary.Version5)}), vmerr.UnknownCode)
}

func TestVerifyModule_LegacyScriptVisibilityWithinModule(t *testing.T) {
	b := testkit.NewModule(2, "user")
	b.M.Version = binary.Version5 - 1
	entry := b.Function("entry", binary.VisibilityPublic, nil, nil, nil, binary.Op(binary.OpRet))
	b.M.FunctionDefs[entry].IsEntry = true
	b.Function("helper", binary.VisibilityPrivate, nil, nil, nil,
		binary.OpIdx(binary.OpCall, uint16(b.M.FunctionDefs[entry].Function)),
		binary.Op(binary.OpRet),
	)
	wantCode(t, depcheck.VerifyModule(b.M, nil), vmerr.CalledScriptVisibleFromNonScriptVisible)
}

func TestVerifyScript(t *testing.T) {
	t.Run("calls script-visible function", func(t *testing.T) {
		b := testkit.NewScript()
		b.M.Version = binary.Version5 - 1
		mh := b.ModuleHandle(1, "coin")
		run := b.FunctionHandle(mh, "run", nil, nil, nil)
		s := b.Script(nil, nil, binary.OpIdx(binary.OpCall, uint16(run)), binary.Op(binary.OpRet))
		wantCode(t, depcheck.VerifyScript(s, []*binary.CompiledModule{coin(binary.Version5 - 1)}), vmerr.UnknownCode)
	})
	t.Run("friend function is not visible", func(t *testing.T) {
		b := testkit.NewScript()
		mh := b.ModuleHandle(1, "coin")
		b.FunctionHandle(mh, "legacy", nil, nil, nil)
		s := b.Script(nil, nil, binary.Op(binary.OpRet))
		err := depcheck.VerifyScript(s, []*binary.CompiledModule{coin(binary.VersionMax, "user")})
		wantCode(t, err, vmerr.LookupFailed)
		var located *vmerr.Error
		if !errors.As(err, &located) || located.Location != vmerr.Script {
			t.Fatalf("expected script location, got %v", err)
		}
	})
	t.Run("missing dependency", func(t *testing.T) {
		b := testkit.NewScript()
		b.ModuleHandle(1, "coin")
		wantCode(t, depcheck.VerifyScript(b.Script(nil, nil, binary.Op(binary.OpRet)), nil), vmerr.MissingDependency)
	})
}
