package main

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Usage: go run ./scripts [repo-root]
//
// Reports service methods that write catalog tables without going through
// the catalog aggregate. Exits 1 when any are found.

type methodStats struct {
	StructName             string   `json:"struct_name"`
	Method                 string   `json:"method"`
	File                   string   `json:"file"`
	Line                   int      `json:"line"`
	RepoWriteCalls         int      `json:"repo_write_calls"`
	RepoWritesObserved     []string `json:"repo_writes_observed"`
	AggregateWriteCalls    int      `json:"aggregate_write_calls"`
	AggregateWriteObserved []string `json:"aggregate_writes_observed"`
}

type auditReport struct {
	ServiceRepoWriteCallsites    int           `json:"service_repo_write_callsites"`
	AggregateOwnedWriteCallsites int           `json:"aggregate_owned_write_callsites"`
	Methods                      []methodStats `json:"methods"`
	Violations                   []methodStats `json:"violations"`
}

type structFields struct {
	RepoFields      map[string]bool
	AggregateFields map[string]bool
}

var repoWriteMethods = map[string]bool{
	"Create":                true,
	"Save":                  true,
	"UpdateStatus":          true,
	"UpdatePositions":       true,
	"SoftDeleteByIDs":       true,
	"SoftDeleteByLessonIDs": true,
	"RestoreByIDs":          true,
	"FullDeleteByIDs":       true,
	"FullDeleteByLessonIDs": true,
	"DeleteByIDs":           true,
	"LockScope":             true,
}

var aggregateWriteMethods = map[string]bool{
	"Create":              true,
	"Update":              true,
	"ChangeStatus":        true,
	"BulkChangeStatus":    true,
	"SoftDelete":          true,
	"Restore":             true,
	"HardDelete":          true,
	"Reposition":          true,
	"UpdateLessonContent": true,
}

func main() {
	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}

	servicesDir := filepath.Join(root, "internal", "services")
	fset := token.NewFileSet()

	pkgs, err := parser.ParseDir(fset, servicesDir, func(fi os.FileInfo) bool {
		name := fi.Name()
		return strings.HasSuffix(name, ".go") && !strings.HasSuffix(name, "_test.go")
	}, 0)
	if err != nil {
		exitf("parse dir: %v", err)
	}
	pkg, ok := pkgs["services"]
	if !ok {
		exitf("services package not found in %s", servicesDir)
	}

	files := make([]*ast.File, 0, len(pkg.Files))
	names := make([]string, 0, len(pkg.Files))
	for path, f := range pkg.Files {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		files = append(files, f)
		names = append(names, rel)
	}

	report := audit(fset, files, names)
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		exitf("marshal report: %v", err)
	}
	fmt.Println(string(out))
	if len(report.Violations) > 0 {
		os.Exit(1)
	}
}

func audit(fset *token.FileSet, files []*ast.File, names []string) auditReport {
	fieldsByStruct := map[string]structFields{}
	for _, f := range files {
		collectStructFields(f, fieldsByStruct)
	}
	var methods []methodStats
	for i, f := range files {
		collectMethodStats(fset, f, names[i], fieldsByStruct, &methods)
	}
	return buildReport(methods)
}

// collectStructFields records fields typed as catalogrepo.* (repositories)
// or domainagg.*Aggregate.
func collectStructFields(file *ast.File, out map[string]structFields) {
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}
		for _, spec := range gd.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			st, ok := ts.Type.(*ast.StructType)
			if !ok || st.Fields == nil {
				continue
			}
			sf := structFields{RepoFields: map[string]bool{}, AggregateFields: map[string]bool{}}
			for _, field := range st.Fields.List {
				if len(field.Names) == 0 {
					continue
				}
				pkgName, typeName := selectorType(field.Type)
				switch {
				case pkgName == "catalogrepo":
					sf.RepoFields[field.Names[0].Name] = true
				case pkgName == "domainagg" && strings.HasSuffix(typeName, "Aggregate"):
					sf.AggregateFields[field.Names[0].Name] = true
				}
			}
			if len(sf.RepoFields) > 0 || len(sf.AggregateFields) > 0 {
				out[ts.Name.Name] = sf
			}
		}
	}
}

func selectorType(expr ast.Expr) (string, string) {
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok {
		return "", ""
	}
	id, ok := sel.X.(*ast.Ident)
	if !ok {
		return "", ""
	}
	return id.Name, sel.Sel.Name
}

func collectMethodStats(
	fset *token.FileSet,
	file *ast.File,
	relFile string,
	fieldsByStruct map[string]structFields,
	out *[]methodStats,
) {
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv == nil || fd.Body == nil || len(fd.Recv.List) == 0 {
			continue
		}
		recvName, recvType := recvInfo(fd.Recv.List[0])
		if recvName == "" {
			continue
		}
		sf, ok := fieldsByStruct[recvType]
		if !ok {
			continue
		}

		stats := methodStats{
			StructName: recvType,
			Method:     fd.Name.Name,
			File:       filepath.ToSlash(relFile),
			Line:       fset.Position(fd.Pos()).Line,
		}
		repoWrites := map[string]bool{}
		aggWrites := map[string]bool{}

		ast.Inspect(fd.Body, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			fnSel, ok := call.Fun.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			field := rootField(fnSel.X, recvName)
			method := fnSel.Sel.Name
			switch {
			case sf.RepoFields[field] && repoWriteMethods[method]:
				stats.RepoWriteCalls++
				repoWrites[field+"."+method] = true
			case sf.AggregateFields[field] && aggregateWriteMethods[method]:
				stats.AggregateWriteCalls++
				aggWrites[method] = true
			}
			return true
		})

		stats.RepoWritesObserved = sortedKeys(repoWrites)
		stats.AggregateWriteObserved = sortedKeys(aggWrites)
		*out = append(*out, stats)
	}
}

// rootField walks s.repos.Node(level).X back to "repos" when the chain
// starts at the receiver.
func rootField(expr ast.Expr, recvName string) string {
	for {
		switch e := expr.(type) {
		case *ast.CallExpr:
			expr = e.Fun
		case *ast.SelectorExpr:
			if id, ok := e.X.(*ast.Ident); ok {
				if id.Name == recvName {
					return e.Sel.Name
				}
				return ""
			}
			expr = e.X
		case *ast.ParenExpr:
			expr = e.X
		default:
			return ""
		}
	}
}

func buildReport(methods []methodStats) auditReport {
	sort.Slice(methods, func(i, j int) bool {
		if methods[i].File == methods[j].File {
			return methods[i].Line < methods[j].Line
		}
		return methods[i].File < methods[j].File
	})

	report := auditReport{Methods: methods}
	for _, m := range methods {
		report.ServiceRepoWriteCallsites += m.RepoWriteCalls
		report.AggregateOwnedWriteCallsites += m.AggregateWriteCalls
		if m.RepoWriteCalls > 0 {
			report.Violations = append(report.Violations, m)
		}
	}
	return report
}

func recvInfo(field *ast.Field) (string, string) {
	if field == nil || len(field.Names) == 0 {
		return "", ""
	}
	recvName := field.Names[0].Name
	switch t := field.Type.(type) {
	case *ast.StarExpr:
		if id, ok := t.X.(*ast.Ident); ok {
			return recvName, id.Name
		}
	case *ast.Ident:
		return recvName, t.Name
	}
	return "", ""
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
