// Command qmi-regen compiles the hjson message schemas under schema/ into
// qmi/registry's static descriptor tables. It is adapted from a full
// request/response struct generator down to a descriptor-only generator:
// this module's registry only ever describes messages and TLVs for
// diagnostics, it never gates the wire codec on them, so there is no need
// to emit typed field accessors.
package main

import (
	"fmt"
	"go/ast"
	"go/format"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hjson/hjson-go"
	"github.com/spf13/pflag"
)

var serviceConst = map[string]string{
	"CTL":    "ServiceCTL",
	"WDS":    "ServiceWDS",
	"DMS":    "ServiceDMS",
	"NAS":    "ServiceNAS",
	"QOS":    "ServiceQOS",
	"WMS":    "ServiceWMS",
	"PDS":    "ServicePDS",
	"AUTH":   "ServiceAUTH",
	"AT":     "ServiceAT",
	"VOICE":  "ServiceVoice",
	"UIM":    "ServiceUIM",
	"PBM":    "ServicePBM",
	"LOC":    "ServiceLOC",
	"SAR":    "ServiceSAR",
	"IMS":    "ServiceIMS",
	"DSD":    "ServiceDSD",
	"CAT":    "ServiceCAT",
	"OMA":    "ServiceOMA",
}

func main() {
	schemaDir := pflag.String("schema-dir", "schema", "directory of .hjson message schemas")
	out := pflag.String("out", "", "output Go file (package registry); required")
	pkg := pflag.String("package", "registry", "package name for the generated file")
	pflag.Parse()

	if *out == "" {
		fmt.Fprintln(os.Stderr, "qmi-regen: --out is required")
		os.Exit(2)
	}

	entries, err := loadSchemas(*schemaDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qmi-regen: %v\n", err)
		os.Exit(1)
	}

	f, err := build(*pkg, entries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qmi-regen: %v\n", err)
		os.Exit(1)
	}

	outFile, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "qmi-regen: %v\n", err)
		os.Exit(1)
	}
	defer outFile.Close()

	fs := token.NewFileSet()
	if err := format.Node(outFile, fs, f); err != nil {
		fmt.Fprintf(os.Stderr, "qmi-regen: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(outFile, "\n// Code generated by qmi-regen from %s, DO NOT EDIT.\n", *schemaDir)
}

func loadSchemas(dir string) ([]schemaMessage, error) {
	var all []schemaMessage

	matches, err := filepath.Glob(filepath.Join(dir, "*.hjson"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	for _, path := range matches {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var msgs []schemaMessage
		if err := hjson.Unmarshal(raw, &msgs); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		all = append(all, msgs...)
	}
	return all, nil
}

// build constructs the generated registry source as an *ast.File: one
// init() whose body registers every message and TLV descriptor found in
// the schemas, mirroring the init-function-of-registerMessage-calls shape
// this tool's ancestor emitted for full typed bindings.
func build(pkgName string, msgs []schemaMessage) (*ast.File, error) {
	f := &ast.File{
		Name:  ast.NewIdent(pkgName),
		Scope: ast.NewScope(nil),
	}

	var stmts []ast.Stmt

	for _, m := range msgs {
		svc, ok := serviceConst[strings.ToUpper(m.Service)]
		if !ok {
			return nil, fmt.Errorf("message %q: unknown service %q", m.Name, m.Service)
		}
		id, err := parseID(m.ID)
		if err != nil {
			return nil, fmt.Errorf("message %q: %w", m.Name, err)
		}

		stmts = append(stmts, &ast.ExprStmt{X: &ast.CallExpr{
			Fun: ast.NewIdent("registerMessage"),
			Args: []ast.Expr{
				&ast.CompositeLit{
					Type: ast.NewIdent("MessageDescriptor"),
					Elts: []ast.Expr{
						kv("Service", ast.NewIdent(svc)),
						kv("ID", hexLit(id)),
						kv("Name", strLit(m.Name)),
					},
				},
			},
		}})

		for _, t := range append(append([]schemaTLV{}, m.Input...), m.Output...) {
			tid, err := parseID(t.ID)
			if err != nil {
				return nil, fmt.Errorf("message %q tlv %q: %w", m.Name, t.Name, err)
			}
			stmts = append(stmts, &ast.ExprStmt{X: &ast.CallExpr{
				Fun: ast.NewIdent("registerTLV"),
				Args: []ast.Expr{
					&ast.CompositeLit{
						Type: ast.NewIdent("TLVDescriptor"),
						Elts: []ast.Expr{
							kv("Service", ast.NewIdent(svc)),
							kv("Message", hexLit(id)),
							kv("Type", hexLit(tid)),
							kv("Name", strLit(t.Name)),
							kv("Format", strLit(t.Format)),
						},
					},
				},
			}})
		}
	}

	if len(stmts) > 0 {
		f.Decls = append(f.Decls, &ast.FuncDecl{
			Name: ast.NewIdent("init"),
			Type: &ast.FuncType{Params: &ast.FieldList{}},
			Body: &ast.BlockStmt{List: stmts},
		})
	}

	return f, nil
}

func kv(key string, value ast.Expr) ast.Expr {
	return &ast.KeyValueExpr{Key: ast.NewIdent(key), Value: value}
}

func strLit(s string) ast.Expr {
	return &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(s)}
}

func hexLit(v uint64) ast.Expr {
	return &ast.BasicLit{Kind: token.INT, Value: fmt.Sprintf("0x%02x", v)}
}

func parseID(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	return strconv.ParseUint(s, 16, 32)
}
