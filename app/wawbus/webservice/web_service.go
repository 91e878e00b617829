// Package webservice serves collected vehicle positions over http
package webservice

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/OpenTransitTools/wawbus/business/analytics"
	"github.com/OpenTransitTools/wawbus/business/data/ztm"
	"github.com/OpenTransitTools/wawbus/foundation/metrics"
	"github.com/gorilla/mux"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
)

// defaultHttpHandler simple default http handler for default route
type defaultHttpHandler struct {
	trajectory *analytics.Trajectory
}

func (h *defaultHttpHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Add("Application-Status", "OK")
	w.Header().Add("Sample-Count", strconv.Itoa(h.trajectory.Len()))
}

// positionHandler answers vehicle and position requests from a trajectory that is no longer appended to
type positionHandler struct {
	log        *log.Logger
	trajectory *analytics.Trajectory
	maxSpeed   float64
	now        func() time.Time
}

func makePositionHandler(log *log.Logger, trajectory *analytics.Trajectory, maxSpeed float64) *positionHandler {
	if maxSpeed <= 0 {
		maxSpeed = analytics.MaxSpeedKmh
	}
	return &positionHandler{
		log:        log,
		trajectory: trajectory,
		maxSpeed:   maxSpeed,
		now:        time.Now,
	}
}

// vehiclesResponse lists every vehicle seen in the trajectory
type vehiclesResponse struct {
	Count    int      `json:"count"`
	Vehicles []string `json:"vehicles"`
}

func (p *positionHandler) serveVehicles(w http.ResponseWriter, _ *http.Request) {
	vehicles := p.trajectory.Vehicles()
	p.writeJSON(w, vehiclesResponse{Count: len(vehicles), Vehicles: vehicles})
}

// speedResponse holds the derived speeds of one vehicle in arrival order
type speedResponse struct {
	VehicleNumber string                  `json:"vehicle_number"`
	Samples       []analytics.SpeedSample `json:"samples"`
}

func (p *positionHandler) serveVehicleSpeed(w http.ResponseWriter, r *http.Request) {
	vehicleId := mux.Vars(r)["vehicleId"]
	samples := p.trajectory.VehicleSamples(vehicleId)
	if len(samples) == 0 {
		http.Error(w, "unknown vehicle", http.StatusNotFound)
		return
	}
	rows := analytics.WithSpeed(samples)
	if strings.ToLower(r.FormValue("plausible")) == "true" {
		rows = analytics.FilterPlausibleSpeeds(rows, p.maxSpeed)
	}
	if rows == nil {
		rows = make([]analytics.SpeedSample, 0)
	}
	p.writeJSON(w, speedResponse{VehicleNumber: vehicleId, Samples: rows})
}

func (p *positionHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	jsonData, err := json.Marshal(v)
	if err != nil {
		p.log.Printf("Error marshaling response to json: error:%v", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(jsonData); err != nil {
		p.log.Printf("Error writing json response: %s", err)
	}
}

// serveVehiclePositions sends the latest position of each vehicle as a gtfs-realtime feed,
// as text when text=true or as json when json=true
func (p *positionHandler) serveVehiclePositions(w http.ResponseWriter, r *http.Request) {
	feedMessage := p.buildFeedMessage(uint64(p.now().Unix()))
	switch {
	case strings.ToLower(r.FormValue("json")) == "true":
		p.writeProtocolBufferAsJSON(feedMessage, w)
	case strings.ToLower(r.FormValue("text")) == "true":
		p.writeProtocolBufferAsText(feedMessage, w)
	default:
		p.writeProtocolBuffer(feedMessage, w)
	}
}

func (p *positionHandler) writeProtocolBuffer(feedMessage *gtfsrtpb.FeedMessage, w http.ResponseWriter) {
	bytes, err := proto.Marshal(feedMessage)
	if err != nil {
		p.log.Printf("Failed to marshal FeedMessage to bytes, error:%s", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/grtfeed")
	bytesWritten, err := w.Write(bytes)
	if err != nil {
		p.log.Printf("Error writing bytes to http.ResponseWriter, error:%s", err)
		return
	}
	p.log.Printf("wrote %d bytes for grtfeed", bytesWritten)
}

func (p *positionHandler) writeProtocolBufferAsText(feedMessage *gtfsrtpb.FeedMessage, w http.ResponseWriter) {
	stringResponse := prototext.MarshalOptions{Multiline: true}.Format(feedMessage)
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte(stringResponse)); err != nil {
		p.log.Printf("Error writing bytes to http.ResponseWriter, error:%s", err)
	}
}

func (p *positionHandler) writeProtocolBufferAsJSON(feedMessage *gtfsrtpb.FeedMessage, w http.ResponseWriter) {
	jsonData, err := protojson.Marshal(feedMessage)
	if err != nil {
		p.log.Printf("Error marshaling FeedMessage to json: error:%v", err)
		http.Error(w, "Error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err = w.Write(jsonData); err != nil {
		p.log.Printf("Error writing json response: %s", err)
	}
}

// buildFeedMessage builds a full dataset feed with one vehicle position entity per vehicle
func (p *positionHandler) buildFeedMessage(now uint64) *gtfsrtpb.FeedMessage {
	feedMessage := gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(now),
		},
		Entity: []*gtfsrtpb.FeedEntity{},
	}
	finalSpeeds := p.finalSpeeds()
	for _, latest := range p.trajectory.Latest() {
		feedMessage.Entity = append(feedMessage.Entity,
			makeVehiclePositionEntity(latest, finalSpeeds[latest.VehicleNumber]))
	}
	return &feedMessage
}

// finalSpeeds returns, per vehicle, the plausible speed over the interval ending at its latest sample
func (p *positionHandler) finalSpeeds() map[string]float64 {
	result := make(map[string]float64)
	for i, row := range p.trajectory.WithSpeed() {
		j := p.trajectory.Next(i)
		if j < 0 || p.trajectory.Next(j) >= 0 {
			continue
		}
		if row.Speed != nil && *row.Speed >= 0 && *row.Speed <= p.maxSpeed {
			result[row.VehicleNumber] = *row.Speed
		}
	}
	return result
}

// makeVehiclePositionEntity reports latest. speedKmh is left out of the position when zero.
func makeVehiclePositionEntity(latest ztm.PositionSample, speedKmh float64) *gtfsrtpb.FeedEntity {
	position := &gtfsrtpb.Position{
		Latitude:  proto.Float32(float32(latest.Latitude)),
		Longitude: proto.Float32(float32(latest.Longitude)),
	}
	if speedKmh > 0 {
		// gtfs-realtime speed is meters per second
		position.Speed = proto.Float32(float32(speedKmh / 3.6))
	}
	return &gtfsrtpb.FeedEntity{
		Id: proto.String(latest.VehicleNumber),
		Vehicle: &gtfsrtpb.VehiclePosition{
			Trip: &gtfsrtpb.TripDescriptor{
				RouteId: proto.String(latest.Line),
			},
			Vehicle: &gtfsrtpb.VehicleDescriptor{
				Id:    proto.String(latest.VehicleNumber),
				Label: proto.String(latest.Line + "/" + latest.Brigade),
			},
			Position:  position,
			Timestamp: proto.Uint64(uint64(latest.Time.Unix())),
		},
	}
}

// CreateServer creates a configured http.Server answering position requests over trajectory
func CreateServer(log *log.Logger,
	trajectory *analytics.Trajectory,
	metricsCollector *metrics.Collector,
	maxSpeed float64,
	httpPort int) *http.Server {

	positions := makePositionHandler(log, trajectory, maxSpeed)

	r := mux.NewRouter()
	r.Handle("/", &defaultHttpHandler{trajectory: trajectory})
	r.HandleFunc("/vehicles", positions.serveVehicles).Methods(http.MethodGet)
	r.HandleFunc("/vehicles/{vehicleId}/speed", positions.serveVehicleSpeed).Methods(http.MethodGet)
	r.HandleFunc("/vehiclePositions", positions.serveVehiclePositions).Methods(http.MethodGet)
	if metricsCollector != nil {
		r.Handle("/metrics", metricsCollector.Handler())
	}
	return &http.Server{
		Addr:         strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
}

// CreateMetricsServer creates an http.Server exposing only metricsCollector, for commands that
// collect rather than serve positions
func CreateMetricsServer(metricsCollector *metrics.Collector, httpPort int) *http.Server {
	r := mux.NewRouter()
	r.Handle("/", &defaultHttpHandler{trajectory: analytics.NewTrajectory(nil)})
	r.Handle("/metrics", metricsCollector.Handler())
	return &http.Server{
		Addr:         strings.Join([]string{"0.0.0.0", strconv.Itoa(httpPort)}, ":"),
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
}

// Run serves until ctx is done, then shuts the server down
func Run(ctx context.Context, log *log.Logger, srv *http.Server) error {
	log.Printf("Starting server on %s", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		log.Printf("ending webservice on shutdown signal")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("error shutting down webservice, error:%s", err)
			return err
		}
	}
	return nil
}
