// Command packetstreamd is a small demonstration harness for the
// packetstream module: it wires an avsource.Source into a Stream, and
// fans the output out to one or more websocket clients via wsloop, so
// connecting browsers receive the same H.264 elementary stream.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	flag "github.com/spf13/pflag"

	"github.com/lanikai/packetstream"
	"github.com/lanikai/packetstream/adapters/avsource"
	"github.com/lanikai/packetstream/adapters/wsloop"
)

var (
	flagInput   = flag.StringP("input", "i", "", "MP4 file to stream (required)")
	flagAddress = flag.StringP("address", "a", ":8080", "HTTP/websocket listen address")
	flagHelp    = flag.BoolP("help", "h", false, "Print usage information and exit")
)

func help() {
	r := color.New(color.FgRed)
	y := color.New(color.FgYellow)
	b := color.New(color.FgCyan)

	r.Printf("  _ __   ")
	y.Printf("__ _  ")
	b.Printf("___ | | __ ___ | |_ ")
	y.Println("___| |_ _ __ ___  __ _ _ __ ___")
	r.Printf(" | '_ \\ ")
	y.Printf("/ _` |")
	b.Printf("/ __|| |/ // _ \\| __|")
	y.Println("/ __| __| '__/ _ \\/ _` | '_ ` _ \\")
	r.Printf(" | |_) |")
	y.Printf("(_| |")
	b.Printf("(__ |   <|  __/| |_ ")
	y.Println("\\__ \\ |_| | |  __/ (_| | | | | | |")
	r.Printf(" | .__/ ")
	y.Printf("\\__,_|")
	b.Printf("\\___||_|\\_\\\\___| \\__|")
	y.Println("|___/\\__|_|  \\___|\\__,_|_| |_| |_|")
	r.Println(" |_|")

	fmt.Println()
	fmt.Println("Usage: packetstreamd -i FILE [-a ADDR]")
	fmt.Println()
	flag.PrintDefaults()
}

func main() {
	flag.Parse()

	if *flagHelp {
		help()
		os.Exit(0)
	}
	if *flagInput == "" {
		fmt.Fprintln(os.Stderr, "packetstreamd: -i/--input is required")
		os.Exit(1)
	}

	src, err := avsource.Open(*flagInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "packetstreamd: %v\n", err)
		os.Exit(1)
	}

	stream := packetstream.NewStream(
		packetstream.WithName("packetstreamd"),
		packetstream.WithCloseOnError(true),
	)
	stream.AttachSource(src, true, true)
	if err := stream.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "packetstreamd: start: %v\n", err)
		os.Exit(1)
	}
	defer stream.Destroy()

	// Each connecting browser subscribes directly to the stream's
	// terminal emitter; a per-connection Loop serializes the resulting
	// writes onto the websocket's own goroutine. Subscribing via
	// Emitter().Attach, rather than Stream.Attach as a processor, sidesteps
	// the "no mutation while Active" rule, since it only registers a
	// signal handler and never touches the processor chain.
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "packetstreamd: upgrade: %v\n", err)
			return
		}
		loop := wsloop.New(conn)
		sink := wsloop.NewSink(loop)

		sub := stream.Emitter().Attach(func(ev packetstream.PacketEvent) {
			loop.Post(func() { sink.Process(ev.Packet) })
		})

		go func() {
			defer stream.Emitter().Detach(sub)
			defer loop.Close()
			defer conn.Close()
			// Block until the browser disconnects; reads are otherwise
			// unused but required to surface close/ping control frames.
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})

	fmt.Printf("Listening on %s, streaming %s\n", *flagAddress, *flagInput)
	if err := http.ListenAndServe(*flagAddress, mux); err != nil {
		fmt.Fprintf(os.Stderr, "packetstreamd: %v\n", err)
		os.Exit(1)
	}
}
