// README: Pricing rate definition for each transport class.
package pricing

type Rate struct {
	TransportClass string
	BaseFare       int64
	PerKm          int64
	Currency       string
}
