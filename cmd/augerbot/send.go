package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gwillem/augerbot/pkg/link"
	"github.com/gwillem/augerbot/pkg/netmsg"
)

type SendCommand struct {
	Host      string        `long:"host" default:"127.0.0.1" description:"Engine host"`
	Port      int           `long:"port" default:"12345" description:"Engine port"`
	Transport string        `long:"transport" default:"tcp" choice:"tcp" choice:"ws" description:"Control channel transport"`
	Path      string        `long:"path" default:"/control" description:"Websocket path"`
	Set       []string      `long:"set" description:"Command item as key=value, repeatable"`
	Stop      bool          `long:"stop" description:"Send STOP instead of commands"`
	Empty     bool          `long:"empty" description:"Send an empty message to simulate link loss"`
	Wait      time.Duration `long:"wait" default:"0s" description:"Wait this long for an acknowledgement"`
}

// parseSets turns key=value pairs into command items. Values are numbers or
// booleans.
func parseSets(sets []string) ([]netmsg.Item, error) {
	items := make([]netmsg.Item, 0, len(sets))
	for _, set := range sets {
		key, raw, ok := strings.Cut(set, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("bad item %q, want key=value", set)
		}
		raw = strings.TrimSpace(raw)

		var value any
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			value = f
		} else if b, err := strconv.ParseBool(raw); err == nil {
			value = b
		} else {
			return nil, fmt.Errorf("item %s: value %q is not a number or boolean", key, raw)
		}
		item, err := netmsg.NewItem(key, value)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// message builds the bytes to send. Batches end with the document
// separator the engine splits on.
func (c *SendCommand) message() ([]byte, error) {
	switch {
	case c.Empty:
		return []byte{}, nil
	case c.Stop:
		return append(netmsg.Stop(), ','), nil
	}
	items, err := parseSets(c.Set)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, errors.New("nothing to send, use --set key=value, --stop or --empty")
	}
	return append(netmsg.Encode(items...), ','), nil
}

func (c *SendCommand) Execute(args []string) error {
	msg, err := c.message()
	if err != nil {
		return err
	}

	ep := link.Endpoint{
		Role:      link.RoleConnect,
		Transport: link.Transport(c.Transport),
		Host:      c.Host,
		Port:      c.Port,
		Path:      c.Path,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := link.Open(ctx, ep)
	if err != nil {
		return fmt.Errorf("connect %s: %w", ep, err)
	}
	defer conn.Close()

	if err := conn.Send(msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	if c.Empty {
		// A TCP peer only sees the empty message once the stream closes.
		fmt.Println("sent empty message")
		return nil
	}
	fmt.Printf("sent %s\n", msg)

	if c.Wait <= 0 {
		return nil
	}
	replies := make(chan []byte, 1)
	go func() {
		reply, err := conn.Receive(ctx)
		if err == nil {
			replies <- reply
		}
	}()
	select {
	case reply := <-replies:
		batch, err := netmsg.Parse(reply)
		if err != nil {
			return fmt.Errorf("reply: %w", err)
		}
		out, _ := json.Marshal(batch.Items)
		fmt.Printf("reply %s\n", out)
	case <-time.After(c.Wait):
		fmt.Println("no reply")
	}
	return nil
}
