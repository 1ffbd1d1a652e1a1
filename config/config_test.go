package config

import (
	"testing"

	memfs "github.com/gopherfs/fs/io/mem/simple"
	"github.com/kylelemons/godebug/pretty"

	"github.com/bearlytools/bitcodec/errors"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		desc    string
		doc     string
		want    Dump
		wantErr bool
	}{
		{
			desc: "Success: empty file is the default",
			doc:  "",
			want: Default(),
		},
		{
			desc: "Success: every key",
			doc: `
protocol = "Synchrophasor"
format = "json"
port = 4713
enum_numbers = true
indent = "  "
limit = 10
log_level = "debug"
`,
			want: Dump{
				Protocol:    Synchrophasor,
				Format:      FormatJSON,
				Port:        4713,
				EnumNumbers: true,
				Indent:      "  ",
				Limit:       10,
				LogLevel:    "debug",
			},
		},
		{
			desc: "Success: schema protocol",
			doc:  "protocol = \"schema\"\nschema = \"reading.yaml\"\nport = -1\n",
			want: Dump{Protocol: Schema, Format: FormatText, Port: -1, Schema: "reading.yaml", LogLevel: "info"},
		},
		{desc: "Error: not TOML", doc: "protocol = ", wantErr: true},
		{desc: "Error: unknown key", doc: "protocl = \"modbus-tcp\"", wantErr: true},
		{desc: "Error: unknown protocol", doc: "protocol = \"dnp3\"", wantErr: true},
		{desc: "Error: schema protocol without a schema", doc: "protocol = \"schema\"", wantErr: true},
		{desc: "Error: schema with another protocol", doc: "schema = \"x.yaml\"", wantErr: true},
		{desc: "Error: unknown format", doc: "format = \"xml\"", wantErr: true},
		{desc: "Error: port", doc: "port = 70000", wantErr: true},
		{desc: "Error: limit", doc: "limit = -1", wantErr: true},
		{desc: "Error: indent", doc: "indent = \"--\"", wantErr: true},
		{desc: "Error: log level", doc: "log_level = \"loud\"", wantErr: true},
	}

	for _, test := range tests {
		got, err := Decode(test.doc)
		switch {
		case err == nil && test.wantErr:
			t.Errorf("[TestDecode](%s): got err == nil, want err != nil", test.desc)
			continue
		case err != nil && !test.wantErr:
			t.Errorf("[TestDecode](%s): got err == %s, want err == nil", test.desc, err)
			continue
		case err != nil:
			if !errors.Is(err, errors.ErrDomain) {
				t.Errorf("[TestDecode](%s): got err == %s, want ErrDomain", test.desc, err)
			}
			continue
		}

		if diff := pretty.Compare(test.want, got); diff != "" {
			t.Errorf("[TestDecode](%s): -want/+got:\n%s", test.desc, diff)
		}
	}
}

func TestLoad(t *testing.T) {
	fsys := memfs.New()
	if err := fsys.WriteFile("/etc/bitdump.toml", []byte("protocol = \"modbus-rtu\"\n"), 0600); err != nil {
		panic(err)
	}

	got, err := Load(fsys, "/etc/bitdump.toml")
	if err != nil {
		t.Fatalf("TestLoad: got err == %s", err)
	}
	if got.Protocol != ModbusRTU {
		t.Errorf("TestLoad: Protocol == %q, want %q", got.Protocol, ModbusRTU)
	}

	if _, err := Load(fsys, "/etc/missing.toml"); err == nil {
		t.Errorf("TestLoad: missing file got err == nil, want err != nil")
	}
}

func TestMatchPort(t *testing.T) {
	tests := []struct {
		desc string
		d    Dump
		want int
	}{
		{desc: "Success: modbus-tcp default", d: Dump{Protocol: ModbusTCP}, want: 502},
		{desc: "Success: synchrophasor default", d: Dump{Protocol: Synchrophasor}, want: 4712},
		{desc: "Success: modbus-rtu matches any", d: Dump{Protocol: ModbusRTU}, want: -1},
		{desc: "Success: explicit", d: Dump{Protocol: ModbusTCP, Port: 1502}, want: 1502},
		{desc: "Success: explicit any", d: Dump{Protocol: ModbusTCP, Port: -1}, want: -1},
	}

	for _, test := range tests {
		if got := test.d.MatchPort(); got != test.want {
			t.Errorf("[TestMatchPort](%s): got %d, want %d", test.desc, got, test.want)
		}
	}
}
