// smqtt-node is a diagnostic mesh node. It prints every event it receives
// and can publish a value periodically.
//
// Usage:
//
//	smqtt-node [options]
//
// Options:
//
//	-config     Path to the YAML configuration file
//	-name       Mesh node name
//	-mode       NodeStandard or NodeReceiveAll (default: NodeStandard)
//	-listen     Mesh UDP listen address (default: ":4210")
//	-peers      Comma-separated mesh peers
//	-log        Log level (default: info)
//	-subscribe  Comma-separated devices or device/kind/name topics
//	-publish    device/kind/name=value to publish
//	-interval   Period of -publish; 0 publishes once (default: 0)
//	-raw        Also print raw packets with their dispatch latency
//
// Example:
//
//	smqtt-node -name sniffer -mode NodeReceiveAll -peers 192.168.1.255
//	smqtt-node -name lamp1 -publish lamp1/switch/power=on -interval 30s
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/backkem/meshmqtt/internal/app"
	"github.com/backkem/meshmqtt/pkg/message"
	"github.com/backkem/meshmqtt/pkg/smqtt"
	"github.com/benbjohnson/clock"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("smqtt-node: %v", err)
	}
}

type nodeOptions struct {
	app.Options
	subscribe string
	publish   string
	interval  time.Duration
	raw       bool
}

func run(args []string) error {
	fs := flag.NewFlagSet("smqtt-node", flag.ExitOnError)
	var opts nodeOptions
	app.RegisterFlags(fs, &opts.Options)
	fs.StringVar(&opts.subscribe, "subscribe", "", "Comma-separated device/kind/name topics to subscribe to")
	fs.StringVar(&opts.publish, "publish", "", "device/kind/name=value to publish")
	fs.DurationVar(&opts.interval, "interval", 0, "Period of -publish; 0 publishes once")
	fs.BoolVar(&opts.raw, "raw", false, "Also print raw packets")
	if err := app.ParseFlags(fs, &opts.Options, args); err != nil {
		return err
	}

	var pub *publication
	if opts.publish != "" {
		p, err := parsePublication(opts.publish)
		if err != nil {
			return err
		}
		pub = &p
	}

	cfg, err := opts.LoadConfig(nil)
	if err != nil {
		return err
	}
	if cfg.NodeMode().IsGateway() {
		return fmt.Errorf("node.mode %s is a gateway mode; use smqtt-gateway", cfg.Node.Mode)
	}

	ctx, stop := app.SignalContext()
	defer stop()

	rt, err := app.Setup(ctx, cfg, app.Hooks{})
	if err != nil {
		return err
	}
	defer rt.Close()

	node := rt.Node
	if err := attachHandlers(node, opts.raw); err != nil {
		return err
	}

	// The node is not running yet, so these go out directly and Run
	// takes over their retransmission.
	for _, topic := range splitTopics(opts.subscribe) {
		t, err := parseSubscription(topic)
		if err != nil {
			return fmt.Errorf("subscribe %q: %w", topic, err)
		}
		if _, err := node.Subscribe(t.Device, paramOf(t)); err != nil {
			return fmt.Errorf("subscribe %q: %w", topic, err)
		}
	}
	if pub != nil {
		if _, err := pub.send(node); err != nil {
			return err
		}
		if opts.interval > 0 {
			go publishEvery(ctx, node.Clock(), opts.interval, func() error {
				return node.Submit(ctx, func(n *smqtt.Node) {
					if _, err := pub.send(n); err != nil {
						log.Printf("publish %s: %v", pub.topic, err)
					}
				})
			})
		}
	}

	log.Printf("node %q running in %s mode on %s", node.Name(), node.Mode(), rt.Mesh.LocalAddr())
	err = rt.Run(ctx)
	log.Println("Shutting down...")
	return err
}

// publication is a parsed -publish flag.
type publication struct {
	topic message.Topic
	value string
}

func parsePublication(s string) (publication, error) {
	topic, value, ok := strings.Cut(s, "=")
	if !ok {
		return publication{}, fmt.Errorf("publish %q: want device/kind/name=value", s)
	}
	t, err := message.ParseTopic(topic)
	if err != nil {
		return publication{}, fmt.Errorf("publish %q: %w", s, err)
	}
	if t.Kind == "" || t.Name == "" {
		return publication{}, fmt.Errorf("publish %q: kind and name are required", s)
	}
	return publication{topic: t, value: value}, nil
}

func (p publication) send(n *smqtt.Node) (uint32, error) {
	return n.Publish(p.topic.Device, p.topic.Name, message.Raw(p.topic.Kind, p.value))
}

// publishEvery calls publish on every tick of clk until ctx is done.
func publishEvery(ctx context.Context, clk clock.Clock, interval time.Duration, publish func() error) {
	ticker := clk.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := publish(); err != nil && ctx.Err() == nil {
				log.Printf("periodic publish: %v", err)
			}
		}
	}
}

// attachHandlers installs the event printer and, if raw is set, the raw
// packet printer.
func attachHandlers(node *smqtt.Node, raw bool) error {
	if err := node.HandleEvents(smqtt.EventHandlerFunc(printEvent)); err != nil {
		return fmt.Errorf("event handler: %w", err)
	}
	if raw {
		if err := node.HandleRaw(smqtt.RawHandlerFunc(printRaw)); err != nil {
			return fmt.Errorf("raw handler: %w", err)
		}
	}
	return nil
}

func printEvent(n *smqtt.Node, e smqtt.Event) {
	mine := ""
	if e.Mine {
		mine = " (mine)"
	}
	fmt.Printf("%s  %-12s %-9s %-28s %s%s\n",
		time.Now().Format("15:04:05.000"), e.Source, e.Command, e.Topic, e.Value.Text, mine)
}

func printRaw(n *smqtt.Node, p smqtt.RawPacket) {
	fmt.Printf("%s  raw reply=%d elapsed=%v %q\n",
		time.Now().Format("15:04:05.000"), p.ReplyID, p.Elapsed, p.Data)
}

func splitTopics(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseSubscription accepts a bare device name or device/kind/name.
func parseSubscription(s string) (message.Topic, error) {
	if !strings.Contains(s, "/") {
		return message.Topic{Device: s}, nil
	}
	return message.ParseTopic(s)
}

// paramOf returns the "kind/name" parameter string Subscribe expects,
// or "" for every parameter of the device.
func paramOf(t message.Topic) string {
	if t.Name == "" {
		return ""
	}
	if t.Kind == "" {
		return t.Name
	}
	return string(t.Kind) + "/" + t.Name
}
