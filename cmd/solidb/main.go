// Command solidb is a REPL over the DBQL executor, backed by an embedded
// pebble data directory.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/k0kubun/pp/v3"
	"golang.org/x/term"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/dbql/exec"
	"github.com/solisoft/solidb/dbql/parser"
	"github.com/solisoft/solidb/document"
	"github.com/solisoft/solidb/engine"
	"github.com/solisoft/solidb/protocol"
	"github.com/solisoft/solidb/sharding"
	"github.com/solisoft/solidb/util"
	"github.com/solisoft/solidb/value"
)

// Config is populated by go-flags.
type Config struct {
	DataDir            string `short:"d" long:"data-dir" description:"Directory holding the embedded store" value-name:"path" default:"./data"`
	Database           string `long:"database" description:"Logical database name (scopes shard config propagation)" value-name:"name" default:"default"`
	NodeID             string `long:"node-id" description:"This node's member ID for single-node shard membership" value-name:"id" default:"local"`
	ClusterSecret      string `long:"cluster-secret" description:"Shared secret for shard-config PUT propagation between nodes" value-name:"secret"`
	QueryFile          string `short:"f" long:"file" description:"Run the DBQL query in this file and exit, instead of starting the REPL" value-name:"filename"`
	CreateCollection   string `long:"create-collection" description:"Create a document collection with this name on startup" value-name:"name"`
	ColumnarCollection bool   `long:"columnar" description:"With --create-collection, create a columnar collection instead of a document one"`
	ExportShardConfig  string `long:"export-shard-config" description:"Write the named collection's shard config/table as YAML to stdout and exit" value-name:"collection"`
	ImportShardConfig  string `long:"import-shard-config" description:"Read a shard config/table YAML snapshot from this file and persist it, then exit" value-name:"filename"`
	DriverAddr         string `long:"driver-addr" description:"Listen for the MessagePack driver protocol on this address instead of starting the REPL" value-name:"host:port"`
	Help               bool   `long:"help" description:"Show this help"`
}

func parseOptions(args []string) (*Config, []string) {
	var cfg Config
	p := flags.NewParser(&cfg, flags.None)
	p.Usage = "[option...]"
	rest, err := p.ParseArgs(args)
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Help {
		p.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	return &cfg, rest
}

func main() {
	util.InitSlog()
	cfg, _ := parseOptions(os.Args[1:])

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}

	members := engine.SingleNodeMembership{Self: cfg.NodeID}
	store, err := engine.Open(cfg.DataDir, cfg.Database)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer store.Close()
	store.Shards = sharding.NewCoordinator(store.KV, members, engine.NoopRebalancer{}, cfg.ClusterSecret, nil)

	if cfg.ExportShardConfig != "" {
		out, err := sharding.ExportYAML(store.KV, cfg.ExportShardConfig)
		if err != nil {
			log.Fatalf("exporting shard config: %v", err)
		}
		os.Stdout.Write(out)
		return
	}
	if cfg.ImportShardConfig != "" {
		data, err := os.ReadFile(cfg.ImportShardConfig)
		if err != nil {
			log.Fatalf("reading shard config snapshot: %v", err)
		}
		collection, err := sharding.ImportYAML(store.KV, data)
		if err != nil {
			log.Fatalf("importing shard config: %v", err)
		}
		fmt.Printf("imported shard config for %q\n", collection)
		return
	}

	if cfg.CreateCollection != "" {
		typ := document.TypeDocument
		if cfg.ColumnarCollection {
			if _, err := store.Columns.CreateCollection(cfg.CreateCollection); err != nil {
				log.Fatalf("creating columnar collection: %v", err)
			}
		} else if _, err := store.Docs.CreateCollection(cfg.CreateCollection, typ); err != nil {
			log.Fatalf("creating document collection: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ex := exec.New(store)
	printer := newResultPrinter()

	if cfg.DriverAddr != "" {
		if err := serveDriver(ctx, cfg.DriverAddr, ex); err != nil && !errors.Is(err, context.Canceled) {
			log.Fatalf("driver server: %v", err)
		}
		return
	}

	if cfg.QueryFile != "" {
		src, err := os.ReadFile(cfg.QueryFile)
		if err != nil {
			log.Fatalf("reading query file: %v", err)
		}
		runQuery(ex, printer, string(src))
		return
	}

	repl(ctx, ex, printer)
}

// serveDriver listens for the MessagePack driver protocol and answers
// query commands with the local executor.
func serveDriver(ctx context.Context, addr string, ex *exec.Executor) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	fmt.Printf("driver protocol listening on %s\n", addr)
	return protocol.Serve(ctx, ln, func(ctx context.Context, cmd protocol.Command) protocol.Response {
		q, err := parser.Parse(cmd.Query)
		if err != nil {
			return protocol.ErrorResponse(err)
		}
		result, err := ex.Run(q, bindVarsFromWire(cmd.BindVars))
		if err != nil {
			return protocol.ErrorResponse(err)
		}
		count := int64(len(result.AsArray()))
		return protocol.OkResponse(result, &count, "")
	})
}

// bindVarsFromWire converts msgpack-decoded bind variables into Values
// via their JSON form; entries that fail to round-trip through JSON are
// dropped.
func bindVarsFromWire(in map[string]interface{}) map[string]value.Value {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]value.Value, len(in))
	for k, raw := range in {
		data, err := json.Marshal(raw)
		if err != nil {
			continue
		}
		v, err := value.UnmarshalJSON(data)
		if err != nil {
			continue
		}
		out[k] = v
	}
	return out
}

// repl reads DBQL queries terminated by a blank line from stdin: read
// input, run it, print the result, never leaving partial state behind on
// error.
func repl(ctx context.Context, ex *exec.Executor, printer *resultPrinter) {
	fmt.Println("solidb> (blank line to run, Ctrl-D to exit)")
	scanner := bufio.NewScanner(os.Stdin)
	var buf strings.Builder
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if buf.Len() > 0 {
				runQuery(ex, printer, buf.String())
				buf.Reset()
			}
			continue
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
}

func runQuery(ex *exec.Executor, printer *resultPrinter, src string) {
	q, err := parser.Parse(src)
	if err != nil {
		printer.printError(err)
		return
	}
	result, err := ex.Run(q, nil)
	if err != nil {
		printer.printError(err)
		return
	}
	printer.print(result)
}

// resultPrinter pretty-prints query results with pp/v3, coloring only
// when stdout is a TTY.
type resultPrinter struct {
	pp *pp.PrettyPrinter
}

func newResultPrinter() *resultPrinter {
	printer := pp.New()
	printer.SetColoringEnabled(term.IsTerminal(int(os.Stdout.Fd())))
	return &resultPrinter{pp: printer}
}

func (r *resultPrinter) print(v value.Value) {
	r.pp.Println(valueAsGo(v))
}

func (r *resultPrinter) printError(err error) {
	var derr *dberr.Error
	if errors.As(err, &derr) {
		fmt.Fprintf(os.Stderr, "error [%s]: %s\n", derr.Kind, derr.Message)
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
}

// valueAsGo unwraps a Value tree into plain Go maps/slices so pp/v3's
// struct-aware pretty printer renders it as nested data rather than
// dumping the Value struct's internal fields.
func valueAsGo(v value.Value) any {
	switch v.Kind() {
	case value.KindArray:
		out := make([]any, len(v.AsArray()))
		for i, e := range v.AsArray() {
			out[i] = valueAsGo(e)
		}
		return out
	case value.KindObject:
		out := make(map[string]any, len(v.Keys()))
		for _, k := range v.Keys() {
			fv, _ := v.Get(k)
			out[k] = valueAsGo(fv)
		}
		return out
	case value.KindNull:
		return nil
	case value.KindBool:
		return v.AsBool()
	case value.KindInt:
		return v.AsInt()
	case value.KindFloat:
		return v.AsFloat()
	case value.KindString:
		return v.AsString()
	default:
		return v.String()
	}
}
