package state

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	blnet_config "github.com/temoto/blnet/hardware/blnet/config"
	"github.com/temoto/blnet/helpers"
	tele_config "github.com/temoto/blnet/internal/tele/config"
	"github.com/temoto/blnet/log2"
)

const (
	PollModeLatest = "latest"
	PollModeDrain  = "drain"

	DefaultPollInterval = time.Minute
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Blnet blnet_config.Config `hcl:"blnet"`
	Poll  PollConfig          `hcl:"poll"`
	Tele  tele_config.Config  `hcl:"tele"`

	_copy_guard sync.Mutex //nolint:unused
}

type PollConfig struct {
	IntervalSec int    `hcl:"interval_sec"`
	Mode        string `hcl:"mode"`
	// drain only, 0 = whole memory
	MaxDatasets int `hcl:"max_datasets"`
}

func (self *PollConfig) Interval() time.Duration {
	return helpers.IntSecondDefault(self.IntervalSec, DefaultPollInterval)
}

func (self *PollConfig) ModeOrDefault() string {
	if self.Mode == "" {
		return PollModeLatest
	}
	return self.Mode
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

// Validate checks values that HCL types can not express.
func (c *Config) Validate() error {
	errs := make([]error, 0)
	switch c.Poll.ModeOrDefault() {
	case PollModeLatest, PollModeDrain:
	default:
		errs = append(errs, errors.NotValidf("config: poll.mode=%s", c.Poll.Mode))
	}
	if c.Poll.IntervalSec < 0 {
		errs = append(errs, errors.NotValidf("config: poll.interval_sec=%d", c.Poll.IntervalSec))
	}
	if c.Poll.MaxDatasets < 0 {
		errs = append(errs, errors.NotValidf("config: poll.max_datasets=%d", c.Poll.MaxDatasets))
	}
	if c.Blnet.Port < 0 || c.Blnet.Port > 65535 {
		errs = append(errs, errors.NotValidf("config: blnet.port=%d", c.Blnet.Port))
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		return nil, errors.Errorf("code error ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	if len(errs) == 0 {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}

// NewConfig is empty config with defaults, for use without config file.
func NewConfig() *Config {
	return &Config{includeSeen: make(map[string]struct{})}
}
