package security

import (
	"sort"
	"strings"
)

// Offline malicious / typosquatting package name library. A curated,
// statically embedded list of known-bad package names for PyPI and npm: no
// network call required, just a sorted slice and a binary search at install
// time. Sources: documented PyPI removal reports (2018-2024), npm security
// advisories, GitHub Advisory Database, Snyk / Socket.dev disclosures.

// Ecosystem names accepted by CheckMaliciousPackage.
const (
	EcosystemPyPI = "PyPI"
	EcosystemNpm  = "npm"
)

type badPackage struct {
	name   string
	reason string
}

// maliciousPyPI lists known-malicious PyPI names, lowercase, sorted
// ascending by name. The sort invariant is verified by a unit test.
var maliciousPyPI = []badPackage{
	{"aiohttp2", "Fake aiohttp package"},
	{"aiounittest2", "Fake aiounittest package"},
	{"alive-bar", "Typosquat of alive-progress"},
	{"amazons3", "Fake AWS S3 package"},
	{"awscli2", "Fake awscli package"},
	{"beautifulsoup3", "Fake beautifulsoup4 package"},
	{"bnc-iac-scan", "Documented supply chain malware (2023)"},
	{"bota3", "Typosquat of boto3"},
	{"bs4-python", "Fake beautifulsoup4 package"},
	{"bto3", "Typosquat of boto3"},
	{"ccxt2", "Fake ccxt cryptocurrency trading library"},
	{"celery2", "Fake celery package"},
	{"click2", "Fake click CLI package"},
	{"coloredlogs2", "Fake coloredlogs package"},
	{"colourama", "Typosquat of colorama — documented 2018 malware"},
	{"cryptography2", "Fake cryptography package"},
	{"cryptograpy", "Typosquat of cryptography"},
	{"crytography", "Typosquat of cryptography"},
	{"ctx", "Supply chain attack (2022): exfiltrated env vars to remote server"},
	{"diango", "Typosquat of django"},
	{"discord-rad", "Malicious Discord package"},
	{"discord-self", "Malicious Discord selfbot — credential theft"},
	{"discord-selfbot", "Malicious Discord selfbot — credential theft"},
	{"discordclient", "Malicious Discord client library"},
	{"djang", "Typosquat of django"},
	{"django2", "Fake django package"},
	{"djangoo", "Typosquat of django"},
	{"dpp", "Supply chain attack (2022): companion malware to ctx"},
	{"eth-account2", "Fake eth-account package"},
	{"exotel", "Documented credential stealer (2022)"},
	{"faker2", "Fake faker package"},
	{"falsk", "Typosquat of flask"},
	{"fastapi2", "Fake FastAPI package"},
	{"flaask", "Typosquat of flask"},
	{"grpcio2", "Fake grpcio package"},
	{"httplib2-python", "Fake httplib2 package"},
	{"httpx2", "Fake httpx package"},
	{"loguru-colorize", "Fake loguru variant"},
	{"loguru2", "Fake loguru package"},
	{"macos-utils", "Documented macOS credential stealer (2023)"},
	{"netstat-ng", "Documented malware: network reconnaissance tool"},
	{"numpy2", "Fake numpy package"},
	{"numpyl", "Typosquat of numpy"},
	{"nunpy", "Typosquat of numpy"},
	{"openssl-python", "Fake OpenSSL package"},
	{"panads", "Typosquat of pandas"},
	{"pandas2", "Fake pandas package"},
	{"pandaz", "Typosquat of pandas"},
	{"paramikoo", "Typosquat of paramiko"},
	{"paramuko", "Typosquat of paramiko"},
	{"pillow-py", "Fake Pillow package"},
	{"pillow2", "Fake Pillow package"},
	{"pilow", "Typosquat of Pillow"},
	{"pycrypto2", "Fake pycryptodome package"},
	{"pycryptodome2", "Fake pycryptodome package"},
	{"pymongo2", "Fake pymongo package"},
	{"pynput2", "Fake pynput package"},
	{"pyopenssl2", "Fake PyOpenSSL package"},
	{"pyperclip2", "Fake pyperclip package"},
	{"pyperclipboard", "Fake pyperclip package"},
	{"pytest2", "Fake pytest package"},
	{"python-binance2", "Fake python-binance package"},
	{"python-dateutil2", "Fake python-dateutil package"},
	{"python-decouple2", "Fake python-decouple package"},
	{"python-ftp", "Fake FTP package shadowing ftplib"},
	{"python-nmap2", "Fake python-nmap package"},
	{"python-requests2", "Fake requests package"},
	{"python-sqlite3", "Fake sqlite3 package — shadows stdlib"},
	{"python-utils2", "Fake python-utils package"},
	{"python-whois2", "Fake python-whois package"},
	{"python3-dateutil", "Typosquat of python-dateutil — documented attack"},
	{"redis2", "Fake redis-py package"},
	{"reqeusts", "Typosquat of requests (transposed letters)"},
	{"requests-html2", "Fake requests-html package"},
	{"requestz", "Typosquat of requests"},
	{"rich2", "Fake rich package"},
	{"scikit-learn2", "Fake scikit-learn package"},
	{"setup-tools", "Typosquat of setuptools"},
	{"setupool", "Typosquat of setuptools"},
	{"setuptool", "Typosquat of setuptools"},
	{"shell-exec", "Suspicious package — known malware delivery category"},
	{"sklearn2", "Fake scikit-learn package"},
	{"sqlalchemy2", "Fake sqlalchemy package"},
	{"starlette2", "Fake starlette package"},
	{"tensorflow2-cpu", "Fake TensorFlow package"},
	{"tqdm2", "Fake tqdm package"},
	{"urlib3", "Typosquat of urllib3"},
	{"urllib", "Shadows Python stdlib urllib; known typosquat vector"},
	{"urllib2", "Python 2 package repackaged maliciously"},
	{"uvicorn2", "Fake uvicorn package"},
	{"web3-ethereum", "Fake web3 package"},
	{"websockets2", "Fake websockets package"},
}

// maliciousNpm lists known-malicious npm names, lowercase, sorted ascending
// by name. The sort invariant is verified by a unit test.
var maliciousNpm = []badPackage{
	{"@marak/colors.js", "Author-sabotaged protest package (2022)"},
	{"@xaop/xaop", "Known cryptominer delivery package"},
	{"axios-fetch", "Fake axios package"},
	{"axois", "Typosquat of axios"},
	{"crypto-js-aes", "Fake crypto-js package"},
	{"discord-selfbot-v13", "Malicious Discord selfbot — account theft"},
	{"discord.js-selfbot-v13", "Malicious Discord selfbot — account theft"},
	{"discordjs", "Typosquat / fake discord.js"},
	{"electron-native-notify", "Compromised: cryptominer injected (2018)"},
	{"event-stream", "Compromised 2018: flatmap-stream injected to steal Bitcoin"},
	{"express-fileupload-plus", "Fake express-fileupload package"},
	{"flatmap-stream", "Companion malware to event-stream attack (2018)"},
	{"install-shelljs", "Suspicious: installs shell execution capability"},
	{"lodahs", "Typosquat of lodash"},
	{"lodash2", "Fake lodash package"},
	{"momnet", "Typosquat of moment"},
	{"node-ipc", "Political wiperware injected in v10.1.1-v10.1.2 (2022)"},
	{"node-shell", "Suspicious: wraps arbitrary shell execution"},
	{"nodemailer-js", "Fake nodemailer package"},
	{"react-dom2", "Fake react-dom package"},
	{"react2", "Fake react package"},
	{"ua-parser-js", "Hijacked 2021: cryptominer + credential stealer injected"},
	{"vue2-cli", "Fake @vue/cli package"},
	{"webpack2", "Fake webpack package"},
}

// MaliciousPackageHit is the result of an offline malicious-package check.
type MaliciousPackageHit struct {
	// Name is the package name as found in the dependency file.
	Name string `json:"name"`

	// Ecosystem is "PyPI" or "npm".
	Ecosystem string `json:"ecosystem"`

	// Reason is the human-readable entry from the embedded database.
	Reason string `json:"reason"`
}

// CheckMaliciousPackage looks a single package up in the offline database.
// Comparison is case-insensitive. Returns nil when the package is not known
// to be malicious.
func CheckMaliciousPackage(name, ecosystem string) *MaliciousPackageHit {
	var table []badPackage
	switch ecosystem {
	case EcosystemPyPI:
		table = maliciousPyPI
	case EcosystemNpm:
		table = maliciousNpm
	default:
		return nil
	}

	lower := strings.ToLower(strings.TrimSpace(name))
	idx := sort.Search(len(table), func(i int) bool { return table[i].name >= lower })
	if idx < len(table) && table[idx].name == lower {
		return &MaliciousPackageHit{Name: name, Ecosystem: ecosystem, Reason: table[idx].reason}
	}
	return nil
}

// CheckMaliciousPackages is the batch variant used by the admission
// pipeline; it returns every hit.
func CheckMaliciousPackages(names []string, ecosystem string) []MaliciousPackageHit {
	var hits []MaliciousPackageHit
	for _, name := range names {
		if hit := CheckMaliciousPackage(name, ecosystem); hit != nil {
			hits = append(hits, *hit)
		}
	}
	return hits
}
