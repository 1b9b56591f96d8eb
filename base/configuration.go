package base

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"time"

	"github.com/COSAE-FR/riarp/address"
	"github.com/COSAE-FR/riarp/arp"
	"github.com/COSAE-FR/riarp/network"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const DefaultMaxNeighbors = 256

type staticEntry struct {
	IP  string `yaml:"ip"`
	MAC string `yaml:"mac"`
}

type Server struct {
	Interface string         `yaml:"interface"`
	Iface     *net.Interface `yaml:"-"`

	// Address overrides the interface's own IPv4 address, in CIDR notation.
	Address string `yaml:"address"`

	LogLevel      string     `yaml:"log_level"`
	LogFile       string     `yaml:"log_file"`
	LogFileWriter io.Writer  `yaml:"-"`
	Log           *log.Entry `yaml:"-"`

	MaxNeighbors    int           `yaml:"max_neighbors"`
	ImportHostTable bool          `yaml:"import_host_table"`
	StatsInterval   time.Duration `yaml:"stats_interval"`

	ARP    arp.Config    `yaml:"arp"`
	Static []staticEntry `yaml:"static"`

	Handler *PacketHandler `yaml:"-"`
	Device  *Device        `yaml:"-"`

	subnet  *network.Subnet
	statics []HostEntry
	stop    chan struct{}
}

// ParseConfig decodes a YAML configuration. The returned errors are
// recoverable: the Server is filled as far as possible.
func ParseConfig(data []byte) (c *Server, errs []error) {
	c = &Server{ARP: arp.DefaultConfig()}

	if err := yaml.Unmarshal(data, c); err != nil {
		errs = append(errs, err)
		return
	}

	if len(c.Interface) == 0 {
		errs = append(errs, fmt.Errorf("missing option interface"))
	}

	if len(c.Address) > 0 {
		subnet, err := network.ParseSubnet(c.Address)
		if err != nil {
			errs = append(errs, fmt.Errorf("cannot parse address %s: %w", c.Address, err))
		} else {
			c.subnet = &subnet
		}
	}

	for i, s := range c.Static {
		ip, err := address.ParseIPv4(s.IP)
		if err != nil {
			errs = append(errs, fmt.Errorf("static entry %d: %w", i, err))
			continue
		}
		if ip.IsZero() {
			errs = append(errs, fmt.Errorf("static entry %d: %w: unspecified address", i, address.ErrInvalidIPv4))
			continue
		}
		mac, err := address.ParseMAC(s.MAC)
		if err != nil {
			errs = append(errs, fmt.Errorf("static entry %d: %w", i, err))
			continue
		}
		c.statics = append(c.statics, HostEntry{IP: ip, MAC: mac, Iface: c.Interface, Permanent: true})
	}

	if c.MaxNeighbors <= 0 {
		c.MaxNeighbors = DefaultMaxNeighbors
	}

	if c.ARP.MaxTries <= 0 {
		c.ARP.MaxTries = arp.DefaultMaxTries
	}
	if c.ARP.RequestPeriod <= 0 {
		c.ARP.RequestPeriod = arp.DefaultRequestPeriod
	}
	if c.ARP.EntryExpiration <= 0 {
		c.ARP.EntryExpiration = arp.DefaultEntryExpiration
	}

	return
}

// LoadConfig reads a YAML file and converts it to a Server object
func LoadConfig(fileName string) (c *Server, errs []error) {
	file, err := ioutil.ReadFile(fileName)
	if err != nil {
		return &Server{}, []error{err}
	}
	c, errs = ParseConfig(file)
	if len(c.Interface) == 0 {
		return
	}

	c.Iface, err = net.InterfaceByName(c.Interface)
	if err != nil {
		errs = append(errs, fmt.Errorf("cannot find listening interface %s", c.Interface))
	}
	return
}

func (server *Server) logger() *log.Entry {
	if server.Log != nil {
		return server.Log
	}
	return log.WithField("app", "riarp")
}

func (server *Server) Start() error {
	logger := server.logger()

	mac, err := address.MACFromHardwareAddr(server.Iface.HardwareAddr)
	if err != nil {
		return fmt.Errorf("interface %s is not Ethernet: %w", server.Interface, err)
	}
	neighbors, err := NewNeighbors(server.MaxNeighbors)
	if err != nil {
		return fmt.Errorf("cannot create neighbor cache: %w", err)
	}
	server.Device = NewDevice(server.Interface, mac, server.Handler, server.ARP, neighbors)
	go server.Device.Run()

	ctx := context.Background()
	subnet := server.subnet
	if subnet == nil {
		s, err := network.InterfaceSubnet(server.Interface)
		if err != nil {
			logger.Warnf("No IPv4 address on %s, outgoing requests are disabled: %v", server.Interface, err)
		} else {
			subnet = &s
		}
	}
	if subnet != nil {
		if err := server.Device.SetAddress(ctx, subnet); err != nil {
			return err
		}
	}

	statics := server.statics
	if server.ImportHostTable {
		entries, err := HostTable()
		if err != nil {
			logger.Errorf("Cannot read host ARP table: %v", err)
		} else {
			imported := StaticHostEntries(entries, server.Interface)
			logger.Infof("Imported %d permanent entries from host ARP table", len(imported))
			// configured entries are installed last and win
			statics = append(imported, statics...)
		}
	}
	for _, s := range statics {
		if err := server.Device.AddStatic(ctx, s.IP, s.MAC); err != nil {
			return err
		}
	}

	server.stop = make(chan struct{})
	go server.Handler.Listen(server.stop, server.Device)
	if server.StatsInterval > 0 {
		go server.logStats(server.stop)
	}
	logger.Infof("ARP resolution running on %s (%s)", server.Interface, mac)
	return nil
}

func (server *Server) logStats(stop <-chan struct{}) {
	ticker := time.NewTicker(server.StatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			fields := log.Fields{}
			for k, v := range server.Device.Counters() {
				fields[k] = v
			}
			server.logger().WithFields(fields).Info("ARP counters")
		}
	}
}

func (server *Server) Stop() error {
	if server.stop != nil {
		close(server.stop)
	}
	if server.Device != nil {
		_ = server.Device.Close()
	}
	if server.Handler != nil {
		server.Handler.Close()
	}
	if closer, ok := server.LogFileWriter.(io.Closer); ok && server.LogFile != "" {
		_ = closer.Close()
	}
	return nil
}
