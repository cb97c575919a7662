// Command qmi-proxy shares one QMI character device between several host
// processes over a Unix-domain socket, the same role libqmi-proxy plays
// for the original library.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/linux-mobile-broadband/libqmi-sub000/qmi"
	"github.com/linux-mobile-broadband/libqmi-sub000/qmi/chardev"
	"github.com/linux-mobile-broadband/libqmi-sub000/qmi/proxy"
)

func main() {
	device := pflag.StringP("device", "d", "/dev/cdc-wdm0", "QMI character device to share")
	socket := pflag.StringP("socket", "s", "/tmp/qmi-proxy", "Unix-domain socket to listen on")
	iface := pflag.String("interface", "wwan0", "network interface name reported to clients")
	verbose := pflag.BoolP("verbose", "v", false, "enable debug logging")
	pflag.Parse()

	logger := log.Default()
	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}

	if err := run(logger, *device, *socket, *iface); err != nil {
		logger.Error("qmi-proxy exiting", "err", err)
		os.Exit(1)
	}
}

func run(logger *log.Logger, devicePath, socketPath, iface string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cd, err := chardev.Open(devicePath, iface, qmi.DataFormatRawIP)
	if err != nil {
		return fmt.Errorf("open %s: %w", devicePath, err)
	}

	dev, err := qmi.Open(ctx, cd, qmi.WithLogger(logger))
	if err != nil {
		cd.Close()
		return fmt.Errorf("open device: %w", err)
	}
	defer dev.Close()

	broker := proxy.NewBroker(dev, socketPath)
	logger.Info("listening", "socket", socketPath, "device", devicePath)
	return broker.Serve(ctx)
}
