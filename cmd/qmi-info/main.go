// Command qmi-info opens a QMI character device (or connects to a running
// qmi-proxy broker), probes the modem's per-service version list over CTL,
// and prints it. It is a thin smoke test for the device/client runtime, not
// a general QMI CLI: per-service operations are out of scope here.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/linux-mobile-broadband/libqmi-sub000/qmi"
	"github.com/linux-mobile-broadband/libqmi-sub000/qmi/chardev"
	"github.com/linux-mobile-broadband/libqmi-sub000/qmi/proxy"
	"github.com/linux-mobile-broadband/libqmi-sub000/qmi/registry"
)

func main() {
	device := pflag.StringP("device", "d", "", "QMI character device to open directly")
	socket := pflag.StringP("socket", "s", "", "qmi-proxy socket to connect to instead")
	timeout := pflag.Duration("timeout", 5*time.Second, "overall timeout for the probe")
	pflag.Parse()

	logger := log.Default()

	if (*device == "") == (*socket == "") {
		fmt.Fprintln(os.Stderr, "qmi-info: exactly one of --device or --socket is required")
		os.Exit(2)
	}

	if err := run(logger, *device, *socket, *timeout); err != nil {
		logger.Error("probe failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *log.Logger, devicePath, socketPath string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var transport qmi.Transport
	if devicePath != "" {
		cd, err := chardev.Open(devicePath, "", qmi.DataFormatUnknown)
		if err != nil {
			return fmt.Errorf("open %s: %w", devicePath, err)
		}
		transport = cd
	} else {
		ct, err := proxy.Dial(socketPath)
		if err != nil {
			return fmt.Errorf("dial %s: %w", socketPath, err)
		}
		transport = ct
	}

	dev, err := qmi.Open(ctx, transport, qmi.WithLogger(logger), qmi.WithVersionProbe())
	if err != nil {
		transport.Close()
		return fmt.Errorf("open device: %w", err)
	}
	defer dev.Close()

	versions := dev.Versions()
	if len(versions) == 0 {
		fmt.Println("no version information reported")
		return nil
	}

	for _, v := range versions {
		fmt.Printf("%-8s %d.%d\n", registry.ServiceName(v.Service), v.Major, v.Minor)
	}
	return nil
}
