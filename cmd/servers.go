package cmd

import (
	"context"
	"flag"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"grimm.is/ngxweb/internal/brand"
	"grimm.is/ngxweb/internal/lb"
)

// RunServers handles the load balancer pool subcommands.
func RunServers(args []string) error {
	if len(args) < 1 {
		printServersUsage()
		return usageError("servers <command>")
	}

	switch args[0] {
	case "list", "ls":
		return runServersList(args[1:])
	case "add":
		return runServersAdd(args[1:])
	case "update":
		return runServersUpdate(args[1:])
	case "remove", "rm":
		return runServersRemove(args[1:])
	case "health":
		return runServersHealth(args[1:])
	case "help", "-h", "--help":
		printServersUsage()
		return nil
	default:
		printServersUsage()
		return fmt.Errorf("unknown servers command: %s", args[0])
	}
}

func runServersList(args []string) error {
	flags := newFlagSet("servers list")
	remote := addRemoteFlags(flags)
	if err := flags.Parse(args); err != nil {
		return err
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	servers, err := c.ListServers(context.Background())
	if err != nil {
		return err
	}
	return render(remote.output, servers, func(w *tabwriter.Writer) {
		if len(servers) == 0 {
			Printer.Fprintln(w, "No servers in the pool")
			return
		}
		Printer.Fprintln(w, "ID\tNAME\tWEIGHT\tMAX CONNS\tHEALTH PATH\tSTATUS")
		for _, s := range servers {
			Printer.Fprintln(w, serverRow(s))
		}
	})
}

func serverRow(s lb.Server) string {
	path := "-"
	if s.HealthCheck != nil {
		path = dash(s.HealthCheck.Path)
	}
	return strings.Join([]string{s.ID, s.Name, optUint(s.Weight), optUint(s.MaxConnections), path, string(s.Status)}, "\t")
}

func optUint(v *uint32) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatUint(uint64(*v), 10)
}

// serverFlags are the member settings shared by add and update.
type serverFlags struct {
	flags      *flag.FlagSet
	name       string
	ip         string
	port       uint
	weight     uint
	maxConns   uint
	healthPath string
}

func addServerFlags(flags *flag.FlagSet) *serverFlags {
	s := &serverFlags{flags: flags}
	flags.StringVar(&s.name, "name", "", "Display name")
	flags.StringVar(&s.ip, "ip", "", "Member address")
	flags.UintVar(&s.port, "port", 80, "Member port")
	flags.UintVar(&s.weight, "weight", 0, "Nginx weight")
	flags.UintVar(&s.maxConns, "max-conns", 0, "Nginx max_conns")
	flags.StringVar(&s.healthPath, "health-path", "", "Health check path")
	return s
}

// set reports whether the named flag was given on the command line.
func (s *serverFlags) set(name string) bool {
	found := false
	s.flags.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func (s *serverFlags) uint32Ptr(name string, v uint) (*uint32, error) {
	if !s.set(name) {
		return nil, nil
	}
	if v > 1<<32-1 {
		return nil, fmt.Errorf("--%s out of range", name)
	}
	u := uint32(v)
	return &u, nil
}

func (s *serverFlags) healthCheck() *lb.HealthCheck {
	if !s.set("health-path") {
		return nil
	}
	path := s.healthPath
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return &lb.HealthCheck{Path: path}
}

func (s *serverFlags) port16() (uint16, error) {
	if s.port == 0 || s.port > 65535 {
		return 0, fmt.Errorf("--port must be between 1 and 65535")
	}
	return uint16(s.port), nil
}

func (s *serverFlags) createRequest() (lb.CreateRequest, error) {
	req := lb.CreateRequest{Name: s.name, IP: s.ip, HealthCheck: s.healthCheck()}
	var err error
	if req.Port, err = s.port16(); err != nil {
		return req, err
	}
	if req.Weight, err = s.uint32Ptr("weight", s.weight); err != nil {
		return req, err
	}
	if req.MaxConnections, err = s.uint32Ptr("max-conns", s.maxConns); err != nil {
		return req, err
	}
	return req, req.Validate()
}

func (s *serverFlags) updateRequest() (lb.UpdateRequest, error) {
	var req lb.UpdateRequest
	if s.set("name") {
		req.Name = &s.name
	}
	if s.set("ip") {
		req.IP = &s.ip
	}
	if s.set("port") {
		port, err := s.port16()
		if err != nil {
			return req, err
		}
		req.Port = &port
	}
	var err error
	if req.Weight, err = s.uint32Ptr("weight", s.weight); err != nil {
		return req, err
	}
	if req.MaxConnections, err = s.uint32Ptr("max-conns", s.maxConns); err != nil {
		return req, err
	}
	req.HealthCheck = s.healthCheck()
	return req, nil
}

func runServersAdd(args []string) error {
	flags := newFlagSet("servers add")
	remote := addRemoteFlags(flags)
	sf := addServerFlags(flags)
	pos, err := parseArgs(flags, args)
	if err != nil {
		return err
	}
	// "servers add 10.0.0.5:8080" is shorthand for --ip and --port.
	if len(pos) == 1 && !sf.set("ip") {
		if err := sf.splitAddress(pos[0]); err != nil {
			return err
		}
	} else if len(pos) > 0 {
		return usageError("servers add [ip:port] [--ip ip --port port] [--weight n] [--max-conns n] [--health-path path]")
	}

	req, err := sf.createRequest()
	if err != nil {
		return err
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	server, err := c.AddServer(context.Background(), req)
	if err != nil {
		return err
	}
	if remote.output != FormatTable {
		return render(remote.output, server, nil)
	}
	Printer.Fprintf(stdout, "Server %s added\n", server.ID)
	return nil
}

func (s *serverFlags) splitAddress(addr string) error {
	i := strings.LastIndex(addr, ":")
	if i <= 0 {
		return s.flags.Set("ip", addr)
	}
	if err := s.flags.Set("ip", addr[:i]); err != nil {
		return err
	}
	if err := s.flags.Set("port", addr[i+1:]); err != nil {
		return fmt.Errorf("invalid port in %q", addr)
	}
	return nil
}

func runServersUpdate(args []string) error {
	flags := newFlagSet("servers update")
	remote := addRemoteFlags(flags)
	sf := addServerFlags(flags)
	pos, err := parseArgs(flags, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usageError("servers update <id> [--name n] [--ip ip] [--port port] [--weight n] [--max-conns n] [--health-path path]")
	}

	req, err := sf.updateRequest()
	if err != nil {
		return err
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	server, err := c.UpdateServer(context.Background(), pos[0], req)
	if err != nil {
		return err
	}
	if remote.output != FormatTable {
		return render(remote.output, server, nil)
	}
	Printer.Fprintf(stdout, "Server %s updated\n", server.ID)
	return nil
}

func runServersRemove(args []string) error {
	flags := newFlagSet("servers remove")
	remote := addRemoteFlags(flags)
	yes := flags.Bool("yes", false, "Remove without confirmation")
	flags.BoolVar(yes, "y", false, "Remove without confirmation (short)")
	pos, err := parseArgs(flags, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usageError("servers remove <id> [--yes]")
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	if err := confirmOrAbort(*yes, "Remove "+pos[0]+" from the pool?"); err != nil {
		return err
	}
	if err := c.RemoveServer(context.Background(), pos[0]); err != nil {
		return err
	}
	Printer.Fprintf(stdout, "Server %s removed\n", pos[0])
	return nil
}

func runServersHealth(args []string) error {
	flags := newFlagSet("servers health")
	remote := addRemoteFlags(flags)
	pos, err := parseArgs(flags, args)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return usageError("servers health <id>")
	}
	c, err := remote.client()
	if err != nil {
		return err
	}

	status, err := c.ServerHealth(context.Background(), pos[0])
	if err != nil {
		return err
	}
	if remote.output != FormatTable {
		return render(remote.output, map[string]lb.Status{"status": status}, nil)
	}
	Printer.Fprintf(stdout, "%s is %s\n", pos[0], status)
	return nil
}

func printServersUsage() {
	Printer.Fprintf(stderr, "Usage: %s servers <command> [options]\n", brand.BinaryName)
	Printer.Fprintln(stderr)
	Printer.Fprintln(stderr, "Commands:")
	Printer.Fprintln(stderr, "  list              List pool members with their health")
	Printer.Fprintln(stderr, "  add [ip:port]     Add a member")
	Printer.Fprintln(stderr, "  update <id>       Change the given settings of a member")
	Printer.Fprintln(stderr, "  remove <id>       Remove a member")
	Printer.Fprintln(stderr, "  health <id>       Probe a member now")
}
