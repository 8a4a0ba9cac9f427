package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/spf13/cobra"
)

var frompcapCmd = &cobra.Command{
	Use:   "frompcap <capture.pcap>",
	Short: "Convert a pcap capture into an arrival-only link trace",
	Long: `Reads a pcap capture and emits a link trace on stdout (or --output):
a base-timestamp directive taken from the first packet, then one arrival
line per packet with millisecond timestamps and wire lengths. The result
can be fed straight back into "linkgraph analyze". Departure and capacity
lines cannot be recovered from a capture, so the converted trace only
supports throughput inspection of the ingress side.`,
	Args: cobra.ExactArgs(1),
	RunE: runFromPcap,
}

var (
	pcapUDPPort int
	pcapOutput  string
)

func init() {
	frompcapCmd.Flags().IntVar(&pcapUDPPort, "udp-port", 0, "only convert UDP packets on this port (0 = all packets)")
	frompcapCmd.Flags().StringVarP(&pcapOutput, "output", "o", "-", "trace output path (\"-\" = stdout)")
}

func runFromPcap(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	input := args[0]

	handle, err := pcap.OpenOffline(input)
	if err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}
	defer handle.Close()

	if pcapUDPPort != 0 {
		filter := fmt.Sprintf("udp port %d", pcapUDPPort)
		if err := handle.SetBPFFilter(filter); err != nil {
			return fmt.Errorf("%s: set filter %q: %w", input, filter, err)
		}
	}

	out := os.Stdout
	if pcapOutput != "-" {
		f, err := os.Create(pcapOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	bw := bufio.NewWriter(out)

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	var (
		count int64
		base  int64
	)
	for packet := range source.Packets() {
		if packet == nil {
			break
		}
		md := packet.Metadata()
		ms := md.Timestamp.UnixMilli()
		if count == 0 {
			base = ms
			fmt.Fprintf(bw, "# base timestamp: %d\n", base)
		}
		fmt.Fprintf(bw, "%d + %d\n", ms, md.Length)
		count++
	}
	if count == 0 {
		return fmt.Errorf("%s: capture holds no matching packets", input)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	glog.Infof("[frompcap] converted %d packets from %s (base %d ms)", count, input, base)
	return nil
}
