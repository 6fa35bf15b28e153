package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable override (MOA_DATABASE_PATH).
const EnvPrefix = "MOA"

// stdinSource is the file setting value that reads the secret from stdin.
const stdinSource = "@-"

// Load defines the configuration flags on the global flag set, parses the
// command line and loads configuration from it.
func Load() (*Config, error) {
	DefineFlags(pflag.CommandLine)
	if !pflag.Parsed() {
		pflag.Parse()
	}
	return LoadFlags(pflag.CommandLine)
}

// LoadFlags resolves the configuration. Highest precedence first: secrets
// read from files or the prompt, flags set on fs, MOA_* environment
// variables, the config file, defaults.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if err := readConfigFile(v, fs); err != nil {
		return nil, err
	}

	// database.pool.max_open -> MOA_DATABASE_POOL_MAX_OPEN
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlagsToViper(v, fs)
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}
	if err := applyMySQLSecrets(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// readConfigFile reads --config when given. Otherwise moalmanac-api.yaml is
// searched for and may be absent.
func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) error {
	var explicit string
	if fs.Lookup("config") != nil {
		explicit, _ = fs.GetString("config")
	}
	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %q: %w", explicit, err)
		}
		return nil
	}

	v.SetConfigName("moalmanac-api")
	v.SetConfigType("yaml")
	for _, dir := range []string{"/etc/moalmanac-api/", "$HOME/.moalmanac-api", "."} {
		v.AddConfigPath(dir)
	}
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

func decodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToStringSliceHookFunc(","),
	))
}

// bindChangedFlagsToViper copies explicitly set flags into viper. Scalars go
// in as their string form and are converted when unmarshalling. Flags
// without a dot (--config, command-local flags) are not configuration keys.
func bindChangedFlagsToViper(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		if !strings.Contains(f.Name, ".") {
			return
		}
		if slice, ok := f.Value.(pflag.SliceValue); ok {
			v.Set(f.Name, slice.GetSlice())
			return
		}
		v.Set(f.Name, f.Value.String())
	})
}

// applyMySQLSecrets fills the DSN and password from files or the terminal
// and pins database.database to the effective schema. The sqlite driver
// never reads them.
func applyMySQLSecrets(v *viper.Viper) error {
	if v.GetString("database.driver") != DriverMySQL {
		return nil
	}

	secrets := []struct {
		key, file, what string
	}{
		{"database.dsn", "database.dsn_file", "database DSN"},
		{"database.password", "database.password_file", "database password"},
	}
	for _, s := range secrets {
		if v.GetString(s.key) != "" || v.GetString(s.file) == "" {
			continue
		}
		value, err := readSecretFile(v.GetString(s.file))
		if err != nil {
			return fmt.Errorf("failed to read %s file: %w", s.what, err)
		}
		v.Set(s.key, value)
	}

	if v.GetString("database.password") == "" && v.GetBool("database.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("database.password", pwd)
	}

	name, _, err := resolveEffectiveDatabaseName(v.GetString("database.database"), v.GetString("database.dsn"))
	if err != nil {
		return fmt.Errorf("failed to resolve effective database name: %w", err)
	}
	v.Set("database.database", name)
	return nil
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter database password: ")
	pwd, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func readSecretFile(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == stdinSource {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// validateSingleStdinFileSource rejects configurations where more than one
// secret would be read from stdin.
func validateSingleStdinFileSource(v *viper.Viper) error {
	var fromStdin []string
	for _, key := range []string{"database.dsn_file", "database.password_file"} {
		if strings.TrimSpace(v.GetString(key)) == stdinSource {
			fromStdin = append(fromStdin, key)
		}
	}
	if len(fromStdin) < 2 {
		return nil
	}
	return fmt.Errorf("only one setting may read from stdin (@-), got %s", strings.Join(fromStdin, ", "))
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, sep)
		for i, part := range parts {
			parts[i] = strings.TrimSpace(part)
		}
		return parts, nil
	}
}
