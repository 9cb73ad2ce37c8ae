package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"unicode"

	"code.securecomm.org/golang/internal/config"
	"code.securecomm.org/golang/pkg/algos"
)

const usageFmt = `
Command Usage: %s [Flags] COMMAND [ARGS]
  Secure channel & key custody tool.

Commands:
---------
  pubkey            print the identity public key (base64 SubjectPublicKeyInfo)
  put NAME VALUE    encrypt VALUE and store it under NAME
  get NAME          print the value stored under NAME
  rm NAME           remove the record stored under NAME
  clear             remove all the records
  destroy NAME      remove the record stored under NAME and destroy its key
  demo              handshake 2 channels over a pipe, exchange a message and replay it

  With -metrics (or metrics.listen) the process keeps serving /metrics once COMMAND
  completes, until it receives SIGINT or SIGTERM.

Flags:
------
`

type Cmd struct {
	Cfg   config.Config
	Curve string
	Name  string
	Args  []string
}

func parseFlags(progname string, args []string) *Cmd {
	cmd := Cmd{}

	flags := flag.NewFlagSet(progname, flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, usageFmt, path.Base(progname))
		flags.PrintDefaults()
	}

	var cfgPath string
	flags.StringVar(&cfgPath, "c", "", `path of the YAML configuration file`)

	var metricsAddr string
	flags.StringVar(&metricsAddr, "metrics", "", `address serving Prometheus /metrics, overrides configuration`)

	const curveDoc = `
	Identity key elliptic curve name.
	Supported Curves %+v.
	`
	cmd.Curve = algos.CURVE_P256
	flags.Func("curve", dedent(fmt.Sprintf(curveDoc, ecdsaCurves())), func(v string) error {
		_, err := algos.GetCurve(v)
		if nil == err {
			cmd.Curve = v
		}
		return err
	})

	flags.Parse(args)

	cfg, err := config.LoadFromPath(cfgPath)
	if nil != err {
		log.Fatalf("Failed loading configuration, got error %v", err)
	}
	if "" != metricsAddr {
		cfg.Metrics.Listen = metricsAddr
	}
	cmd.Cfg = cfg

	if 0 == flags.NArg() {
		flags.Usage()
		os.Exit(2)
	}
	cmd.Name = flags.Arg(0)
	cmd.Args = flags.Args()[1:]

	return &cmd
}

func main() {
	cmd := parseFlags(os.Args[0], os.Args[1:])

	app, err := NewApp(cmd.Cfg, os.Stderr, WithCurve(cmd.Curve))
	if nil != err {
		log.Fatalf("Failed initializing, got error %v", err)
	}
	defer app.Close()

	var ln net.Listener
	if "" != cmd.Cfg.Metrics.Listen {
		ln, err = net.Listen("tcp", cmd.Cfg.Metrics.Listen)
		if nil != err {
			app.Close()
			log.Fatalf("Failed listening on %s, got error %v", cmd.Cfg.Metrics.Listen, err)
		}
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = app.Exec(ctx, ln, cmd.Name, cmd.Args, os.Stdout)
	if nil != err {
		app.Close()
		log.Fatalf("Failed %s, got error %v", cmd.Name, err)
	}
}

// Run executes the command name.
func (self *App) Run(name string, args []string, out io.Writer) error {
	switch name {
	case "pubkey":
		return self.PubKey(out)
	case "put":
		if 2 != len(args) {
			return fmt.Errorf("put requires NAME VALUE")
		}
		return self.Put(args[0], []byte(args[1]))
	case "get":
		if 1 != len(args) {
			return fmt.Errorf("get requires NAME")
		}
		return self.Get(args[0], out)
	case "rm":
		if 1 != len(args) {
			return fmt.Errorf("rm requires NAME")
		}
		return self.Remove(args[0])
	case "clear":
		return self.Clear()
	case "destroy":
		if 1 != len(args) {
			return fmt.Errorf("destroy requires NAME")
		}
		return self.Destroy(args[0])
	case "demo":
		return self.Demo(out)
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func ecdsaCurves() []string {
	var names []string
	for _, name := range algos.ListCurves() {
		curve, _ := algos.GetCurve(name)
		if nil != curve.Elliptic() {
			names = append(names, name)
		}
	}
	return names
}

func dedent(multilines string) string {
	var sb strings.Builder
	for line := range strings.Lines(strings.TrimRightFunc(multilines, unicode.IsSpace)) {
		sb.WriteString(strings.TrimLeftFunc(line, unicode.IsSpace))
	}
	return sb.String()
}
