package model

import (
	"strings"
	"testing"

	"go.bytecodealliance.org/wit"
)

const renderDoc = `{
	"name": "renderer",
	"version": "1.2.0",
	"resources": ["template"],
	"types": [
		{"name": "lang", "enum": ["js", "rust", "go"]},
		{"name": "pair", "type": "tuple<string, string>"},
		{"name": "options", "record": [
			{"name": "strict", "type": "bool"},
			{"name": "indent", "type": "option<u8>"}
		]},
		{"name": "outcome", "variant": [
			{"name": "empty"},
			{"name": "text", "type": "string"}
		]}
	],
	"exports": [
		{"name": "render", "params": [
			{"name": "lang", "type": "lang"},
			{"name": "template", "type": "string"},
			{"name": "strict", "type": "bool"}
		], "result": "result<list<pair>, string>"},
		{"name": "compile", "kind": "constructor", "resource": "template", "params": [
			{"name": "source", "type": "string"}
		], "result": "own<template>"}
	],
	"imports": [
		{"name": "log", "params": [{"name": "msg", "type": "string"}]}
	]
}`

func TestLoadDocument(t *testing.T) {
	iface, err := LoadDocument(strings.NewReader(renderDoc))
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if iface.QualifiedName() != "renderer@1.2.0" {
		t.Errorf("QualifiedName = %q", iface.QualifiedName())
	}

	render := iface.Export("render")
	if render == nil {
		t.Fatal("render not registered")
	}
	if got := render.Result.String(); got != "result<list<pair>, string>" {
		t.Errorf("render result = %q", got)
	}
	if render.Params[0].Type != iface.Type("lang") {
		t.Error("lang param does not reference the named enum")
	}
	if got := iface.Type("pair").Describe(); got != "tuple<string, string>" {
		t.Errorf("pair = %q", got)
	}

	ctor := iface.Export("[constructor]template")
	if ctor == nil || ctor.Result.Kind != KindOwn {
		t.Fatal("constructor not registered")
	}
	if len(iface.Imports()) != 1 || iface.Import("log") == nil {
		t.Error("import not registered")
	}
}

func TestLoadDocument_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad json", `{"name":`},
		{"unknown field", `{"name": "x", "extra": 1}`},
		{"no name", `{}`},
		{"bad version", `{"name": "x", "version": "one"}`},
		{"unknown type", `{"name": "x", "exports": [{"name": "f", "result": "nope"}]}`},
		{"unknown resource", `{"name": "x", "exports": [{"name": "f", "result": "own<r>"}]}`},
		{"two shapes", `{"name": "x", "types": [{"name": "t", "enum": ["a"], "flags": ["b"]}]}`},
		{"unbalanced", `{"name": "x", "exports": [{"name": "f", "result": "list<u8"}]}`},
		{"duplicate resource", `{"name": "x", "resources": ["r", "r"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadDocument(strings.NewReader(tt.doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseType(t *testing.T) {
	iface := NewInterface("p")
	for _, expr := range []string{
		"u32",
		"list<list<u8>>",
		"result<_, string>",
		"result<tuple<s64, f32>>",
		"option<option<char>>",
	} {
		ty, err := ParseType(iface, expr)
		if err != nil {
			t.Fatalf("ParseType(%q): %v", expr, err)
		}
		if ty.String() != expr {
			t.Errorf("ParseType(%q).String() = %q", expr, ty.String())
		}
	}
}

func TestFromWIT(t *testing.T) {
	name := "entry"
	rname := "handle"
	res := &wit.TypeDef{Name: &rname}
	entry := &wit.TypeDef{
		Name: &name,
		Kind: &wit.Record{
			Fields: []wit.Field{
				{Name: "id", Type: wit.U32{}},
				{Name: "tags", Type: &wit.TypeDef{Kind: &wit.List{Type: wit.String{}}}},
				{Name: "owner", Type: &wit.TypeDef{Kind: &wit.Own{Type: res}}},
			},
		},
	}

	iface := NewInterface("w")
	conv := NewWITConverter(iface)
	ty, err := conv.Convert(entry)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if ty.Name != "entry" || len(ty.Fields) != 3 {
		t.Fatalf("converted %s", ty.Describe())
	}
	if ty.Fields[1].Type.String() != "list<string>" {
		t.Errorf("tags = %s", ty.Fields[1].Type)
	}
	if iface.Resource("handle") == nil {
		t.Error("resource not added")
	}

	again, _ := conv.Convert(entry)
	if again != ty {
		t.Error("type definitions should be memoized")
	}

	if _, err := iface.AddType("entry", ty); err != nil {
		t.Fatalf("AddType: %v", err)
	}
}
