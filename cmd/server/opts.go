package main

var opts struct {
	Node struct {
		Name string `long:"name" env:"NAME" required:"true" description:"node display name"`
		Role string `long:"role" env:"ROLE" default:"app" description:"process role (app, web, ce)"`
	} `group:"node" namespace:"node" env-namespace:"NODE"`

	Cluster struct {
		Name          string `long:"name" env:"NAME" default:"kluster" description:"cluster name, members of other clusters are ignored"`
		BindAddr      string `long:"bind-addr" env:"BIND_ADDR" required:"true" description:"interface to bind gossip and rpc listeners"`
		BindPort      int    `long:"bind-port" env:"BIND_PORT" default:"9003" description:"gossip port"`
		RPCPort       int    `long:"rpc-port" env:"RPC_PORT" default:"9004" description:"node-to-node rpc port"`
		AdvertiseAddr string `long:"advertise-addr" env:"ADVERTISE_ADDR" description:"address to advertise to other members"`
		Strategy      string `long:"discovery" env:"DISCOVERY" default:"static" description:"discovery strategy (static, dns)"`
		Members       string `long:"members" env:"MEMBERS" description:"comma-separated list of members to join"`
		DNSName       string `long:"dns-name" env:"DNS_NAME" description:"name resolving to all members"`
		DNSPort       int    `long:"dns-port" env:"DNS_PORT" default:"9003" description:"gossip port of members found by name"`
		ResolvConf    string `long:"resolv-conf" env:"RESOLV_CONF" default:"/etc/resolv.conf" description:"name servers used by the dns strategy"`
		TombstoneTTL  int    `long:"tombstone-ttl" env:"TOMBSTONE_TTL" default:"600" description:"how long removed keys are remembered (s)"`
	} `group:"cluster" namespace:"cluster" env-namespace:"CLUSTER"`

	Jobs struct {
		CleanupInterval int `long:"cleanup-interval" env:"CLEANUP_INTERVAL" default:"60" description:"cleanup job interval (s)"`
	} `group:"jobs" namespace:"jobs" env-namespace:"JOBS"`

	PlatformVersion string `long:"platform-version" env:"PLATFORM_VERSION" default:"dev" description:"version registered in the cluster"`
	Verbose         bool   `long:"verbose" env:"VERBOSE" description:"verbose mode"`
}
