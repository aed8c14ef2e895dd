// Package fb holds the FlatBuffers accessors for schema/catalog.fbs.
//
// The files follow the layout of flatc's Go output and are maintained by hand
// alongside the schema. Field slots must match the order of fields in
// catalog.fbs; `flatc --go -o internal schema/catalog.fbs` produces an
// equivalent package.
package fb
