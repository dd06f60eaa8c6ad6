package cpi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
)

// Method names on the wire.
const (
	MethodCurrentVMID       = "current_vm_id"
	MethodCreateStemcell    = "create_stemcell"
	MethodDeleteStemcell    = "delete_stemcell"
	MethodCreateVM          = "create_vm"
	MethodDeleteVM          = "delete_vm"
	MethodHasVM             = "has_vm"
	MethodRebootVM          = "reboot_vm"
	MethodSetVMMetadata     = "set_vm_metadata"
	MethodConfigureNetworks = "configure_networks"
	MethodCreateDisk        = "create_disk"
	MethodDeleteDisk        = "delete_disk"
	MethodAttachDisk        = "attach_disk"
	MethodDetachDisk        = "detach_disk"
	MethodSnapshotDisk      = "snapshot_disk"
	MethodDeleteSnapshot    = "delete_snapshot"
	MethodGetDisks          = "get_disks"
	MethodPing              = "ping"
)

// ArgType is the JSON shape a positional argument must have.
type ArgType string

const (
	ArgString     ArgType = "string"
	ArgInteger    ArgType = "integer"
	ArgObject     ArgType = "object"
	ArgStringList ArgType = "string_list"
)

// Param declares one positional argument of a method.
type Param struct {
	Name     string
	Type     ArgType
	Nullable bool
}

// MethodSpec declares a CPI method and its positional parameters.
type MethodSpec struct {
	Name   string
	Params []Param
}

// ErrUnknownMethod is returned for methods outside the CPI surface.
var ErrUnknownMethod = errors.New("unknown cpi method")

// ArgumentError reports arguments that do not match a method's declaration.
type ArgumentError struct {
	Method string
	Param  string
	Index  int
	Reason string
	Err    error
}

func (e *ArgumentError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("invalid arguments for cpi method %s: %s", e.Method, e.Reason)
	}
	return fmt.Sprintf("invalid argument %d (%s) for cpi method %s: %s", e.Index, e.Param, e.Method, e.Reason)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// Only arity and JSON shape are declared. Values are the CPI's to judge.
var (
	cidParam = func(name string) Param {
		return Param{Name: name, Type: ArgString}
	}
	objectParam = func(name string) Param {
		return Param{Name: name, Type: ArgObject, Nullable: true}
	}
)

var methodTable = map[string]MethodSpec{
	MethodCurrentVMID: {Name: MethodCurrentVMID},
	MethodCreateStemcell: {Name: MethodCreateStemcell, Params: []Param{
		{Name: "image_path", Type: ArgString},
		objectParam("cloud_properties"),
	}},
	MethodDeleteStemcell: {Name: MethodDeleteStemcell, Params: []Param{cidParam("stemcell_cid")}},
	MethodCreateVM: {Name: MethodCreateVM, Params: []Param{
		{Name: "agent_id", Type: ArgString},
		cidParam("stemcell_cid"),
		objectParam("cloud_properties"),
		objectParam("network_settings"),
		{Name: "disk_cids", Type: ArgStringList, Nullable: true},
		objectParam("environment"),
	}},
	MethodDeleteVM: {Name: MethodDeleteVM, Params: []Param{cidParam("vm_cid")}},
	MethodHasVM:    {Name: MethodHasVM, Params: []Param{cidParam("vm_cid")}},
	MethodRebootVM: {Name: MethodRebootVM, Params: []Param{cidParam("vm_cid")}},
	MethodSetVMMetadata: {Name: MethodSetVMMetadata, Params: []Param{
		cidParam("vm_cid"),
		objectParam("metadata"),
	}},
	MethodConfigureNetworks: {Name: MethodConfigureNetworks, Params: []Param{
		cidParam("vm_cid"),
		objectParam("networks"),
	}},
	MethodCreateDisk: {Name: MethodCreateDisk, Params: []Param{
		{Name: "size", Type: ArgInteger},
		{Name: "vm_cid", Type: ArgString, Nullable: true},
	}},
	MethodDeleteDisk:     {Name: MethodDeleteDisk, Params: []Param{cidParam("disk_cid")}},
	MethodAttachDisk:     {Name: MethodAttachDisk, Params: []Param{cidParam("vm_cid"), cidParam("disk_cid")}},
	MethodDetachDisk:     {Name: MethodDetachDisk, Params: []Param{cidParam("vm_cid"), cidParam("disk_cid")}},
	MethodSnapshotDisk:   {Name: MethodSnapshotDisk, Params: []Param{cidParam("disk_cid")}},
	MethodDeleteSnapshot: {Name: MethodDeleteSnapshot, Params: []Param{cidParam("snapshot_cid")}},
	MethodGetDisks:       {Name: MethodGetDisks, Params: []Param{cidParam("vm_cid")}},
	MethodPing:           {Name: MethodPing},
}

// LookupMethod returns the declaration of a CPI method.
func LookupMethod(name string) (MethodSpec, bool) {
	spec, ok := methodTable[name]
	return spec, ok
}

// Methods returns every declared method ordered by name.
func Methods() []MethodSpec {
	out := make([]MethodSpec, 0, len(methodTable))
	for _, spec := range methodTable {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Signature renders the method as name(param, ...).
func (s MethodSpec) Signature() string {
	names := make([]string, len(s.Params))
	for i, p := range s.Params {
		names[i] = p.Name
	}
	return fmt.Sprintf("%s(%s)", s.Name, strings.Join(names, ", "))
}

// ValidateArguments checks the arity and JSON shape of args.
func (s MethodSpec) ValidateArguments(args []interface{}) error {
	if len(args) != len(s.Params) {
		return &ArgumentError{
			Method: s.Name,
			Reason: fmt.Sprintf("expected %d arguments, got %d", len(s.Params), len(args)),
		}
	}

	for i, p := range s.Params {
		arg := args[i]
		if isNil(arg) {
			if p.Nullable {
				continue
			}
			return &ArgumentError{Method: s.Name, Param: p.Name, Index: i, Reason: "must not be null"}
		}

		if err := checkType(p.Type, arg); err != nil {
			return &ArgumentError{Method: s.Name, Param: p.Name, Index: i, Reason: err.Error()}
		}
	}

	return nil
}

func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	if raw, ok := v.(json.RawMessage); ok {
		return strings.TrimSpace(string(raw)) == "null"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// checkType verifies arg has the JSON shape t.
func checkType(t ArgType, arg interface{}) error {
	if raw, ok := arg.(json.RawMessage); ok {
		var decoded interface{}
		dec := json.NewDecoder(strings.NewReader(string(raw)))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		arg = decoded
	}

	rv := reflect.Indirect(reflect.ValueOf(arg))

	switch t {
	case ArgString:
		if _, isNumber := arg.(json.Number); isNumber || rv.Kind() != reflect.String {
			return fmt.Errorf("expected string, got %T", arg)
		}
		return nil

	case ArgInteger:
		switch n := arg.(type) {
		case json.Number:
			if _, err := n.Int64(); err != nil {
				return fmt.Errorf("expected integer, got %s", n)
			}
			return nil
		case float32, float64:
			if f := rv.Float(); f != math.Trunc(f) {
				return fmt.Errorf("expected integer, got %v", f)
			}
			return nil
		}
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return nil
		}
		return fmt.Errorf("expected integer, got %T", arg)

	case ArgObject:
		switch rv.Kind() {
		case reflect.Map:
			if rv.Type().Key().Kind() != reflect.String {
				return fmt.Errorf("expected object with string keys, got %T", arg)
			}
			return nil
		case reflect.Struct:
			return nil
		}
		return fmt.Errorf("expected object, got %T", arg)

	case ArgStringList:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return fmt.Errorf("expected array of strings, got %T", arg)
		}
		for i := 0; i < rv.Len(); i++ {
			elem := reflect.Indirect(reflect.ValueOf(rv.Index(i).Interface()))
			if !elem.IsValid() || elem.Kind() != reflect.String {
				return fmt.Errorf("expected array of strings, element %d is %T", i, rv.Index(i).Interface())
			}
		}
		return nil
	}

	return fmt.Errorf("unsupported argument type %s", t)
}
