package irpack

// SchemaVersion is bumped whenever the File layout changes.
const SchemaVersion uint16 = 1

// File is the root of an encoded module.
type File struct {
	Schema uint16 `msgpack:"schema" yaml:"schema"`
	Module string `msgpack:"module" yaml:"module"`
	Source string `msgpack:"source,omitempty" yaml:"source,omitempty"` // file name for positions
	Funcs  []Func `msgpack:"funcs" yaml:"funcs"`
}

// Func is a definition when Blocks is non-empty and a declaration
// otherwise.
type Func struct {
	Name    string   `msgpack:"name" yaml:"name"`
	Type    string   `msgpack:"type" yaml:"type"`
	Linkage string   `msgpack:"linkage,omitempty" yaml:"linkage,omitempty"`
	Params  []string `msgpack:"params,omitempty" yaml:"params,omitempty,flow"`
	Blocks  []Block  `msgpack:"blocks,omitempty" yaml:"blocks,omitempty"`
}

type Block struct {
	Name   string  `msgpack:"name" yaml:"name"`
	Instrs []Instr `msgpack:"instrs,omitempty" yaml:"instrs,omitempty"`
	Term   Instr   `msgpack:"term" yaml:"term"`
}

// Instr encodes both instructions and terminators. Op is the mnemonic:
// a cast or binary opcode names itself ("bitcast", "add").
//
// Operand layout by op:
//
//	alloca          Type=element, Args=[count]?
//	load            Args=[ptr]
//	store           Args=[value, ptr]
//	getelementptr   Args=[base, index...], Flags=[inbounds]?
//	icmp            Pred, Args=[x, y]
//	phi             Type, Args=[value...], Labels=[pred...]
//	<cast>          Type=destination, Args=[x]
//	<binary>        Args=[x, y], Flags=[nsw|nuw...]
//	select          Args=[cond, x, y]
//	call            Args=[@callee, arg...]
//	va_arg          Type, Args=[list]
//	extractvalue    Args=[agg], Indices
//	insertvalue     Args=[agg, elem], Indices
//	ret             Args=[value]?
//	br              Labels=[target] or Args=[cond], Labels=[then, else]
//	switch          Args=[cond, case...], Labels=[default, target...]
//	unreachable
type Instr struct {
	Op      string   `msgpack:"op" yaml:"op"`
	Name    string   `msgpack:"name,omitempty" yaml:"name,omitempty"`
	Type    string   `msgpack:"type,omitempty" yaml:"type,omitempty"`
	Pred    string   `msgpack:"pred,omitempty" yaml:"pred,omitempty"`
	Args    []string `msgpack:"args,omitempty" yaml:"args,omitempty,flow"`
	Labels  []string `msgpack:"labels,omitempty" yaml:"labels,omitempty,flow"`
	Indices []uint32 `msgpack:"indices,omitempty" yaml:"indices,omitempty,flow"`
	Flags   []string `msgpack:"flags,omitempty" yaml:"flags,omitempty,flow"`
	Line    uint32   `msgpack:"line,omitempty" yaml:"line,omitempty"`
	Col     uint32   `msgpack:"col,omitempty" yaml:"col,omitempty"`
}

const (
	linkageInternal = "internal"

	flagInbounds = "inbounds"
	flagNSW      = "nsw"
	flagNUW      = "nuw"

	opAlloca       = "alloca"
	opLoad         = "load"
	opStore        = "store"
	opGEP          = "getelementptr"
	opICmp         = "icmp"
	opPhi          = "phi"
	opSelect       = "select"
	opCall         = "call"
	opVAArg        = "va_arg"
	opExtractValue = "extractvalue"
	opInsertValue  = "insertvalue"
	opRet          = "ret"
	opBr           = "br"
	opSwitch       = "switch"
	opUnreachable  = "unreachable"
)
