package config

import (
	lua "github.com/yuin/gopher-lua"
)

// callStackSize bounds recursion in user configs.
const callStackSize = 256

// safeLibs are the only standard libraries opened in the config VM.
var safeLibs = []struct {
	name string
	open lua.LGFunction
}{
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// blockedGlobals are base library functions removed after opening it.
// print is blocked because stdout carries the stream transport.
var blockedGlobals = []string{
	"require",
	"module",
	"dofile",
	"loadfile",
	"load",
	"loadstring",
	"collectgarbage",
	"getfenv",
	"setfenv",
	"print",
}

// newSandboxedVM creates a Lua VM for config parsing. Only the base, table,
// string and math libraries are opened; os, io, package and debug never
// exist in the VM.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:  true,
		CallStackSize: callStackSize,
	})
	for _, lib := range safeLibs {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}
