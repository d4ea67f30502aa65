package mymqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/grandcat/zeroconf"
)

const ZEROCONF_SERVICE = "_mqtt._tcp"

const MDNS_LOOKUP_DEFAULT_TIMEOUT = 7 * time.Second

func brokerUrl(options Options, host string, port int) *url.URL {
	scheme := "tcp"
	if options.TLS {
		scheme = "ssl"
	}
	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
	}
}

func lookupBroker(ctx context.Context, log logr.Logger, options Options) (*url.URL, error) {
	port := options.Port
	if port == 0 {
		port = PRIVATE_PORT
		if options.TLS {
			port = PUBLIC_PORT
		}
	}

	if options.Host != "" {
		if ip := net.ParseIP(options.Host); ip != nil {
			log.Info("Using IP", "ip", ip, "port", port)
			return brokerUrl(options, ip.String(), port), nil
		}
		if _, err := net.DefaultResolver.LookupHost(ctx, options.Host); err != nil {
			return nil, fmt.Errorf("could not resolve MQTT broker host %s: %w", options.Host, err)
		}
		log.Info("Using host", "host", options.Host, "port", port)
		return brokerUrl(options, options.Host, port), nil
	}

	timeout := options.MdnsTimeout
	if timeout <= 0 {
		timeout = MDNS_LOOKUP_DEFAULT_TIMEOUT
	}
	host, port, err := lookupBrokerViaZeroConf(ctx, log, timeout)
	if err != nil {
		return nil, err
	}
	return brokerUrl(options, host, port), nil
}

func lookupBrokerViaZeroConf(ctx context.Context, log logr.Logger, timeout time.Duration) (string, int, error) {
	log.Info("Looking up MQTT broker over mDNS", "service", ZEROCONF_SERVICE, "timeout", timeout)
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return "", 0, fmt.Errorf("failed to initialize zeroconf resolver: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan *zeroconf.ServiceEntry, 1)
	go func() {
		for entry := range entries {
			// Filter-out spurious candidates
			if !strings.Contains(entry.Service, ZEROCONF_SERVICE) || len(entry.AddrIPv4) == 0 {
				continue
			}
			log.Info("Found MQTT broker", "instance", entry.Instance, "ips", entry.AddrIPv4, "port", entry.Port)
			select {
			case found <- entry:
				cancel()
			default:
			}
		}
	}()

	if err := resolver.Browse(ctx, ZEROCONF_SERVICE, "local.", entries); err != nil {
		return "", 0, fmt.Errorf("failed to browse for %s: %w", ZEROCONF_SERVICE, err)
	}
	<-ctx.Done()

	select {
	case entry := <-found:
		return entry.AddrIPv4[0].String(), entry.Port, nil
	default:
		return "", 0, fmt.Errorf("no MQTT broker found over mDNS within %v", timeout)
	}
}
