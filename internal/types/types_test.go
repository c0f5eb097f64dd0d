package types

import "testing"

func TestFrameValidate(t *testing.T) {
	tests := []struct {
		name    string
		face    FaceObservation
		wantErr bool
	}{
		{"unmeasured", FaceObservation{HeadEulerAngleY: -80}, false},
		{"bounds", FaceObservation{LeftEyeOpenProbability: Prob(0), RightEyeOpenProbability: Prob(1), SmilingProbability: Prob(0.5)}, false},
		{"above one", FaceObservation{LeftEyeOpenProbability: Prob(7.5)}, true},
		{"negative", FaceObservation{RightEyeOpenProbability: Prob(-3)}, true},
		{"smile above one", FaceObservation{SmilingProbability: Prob(1.01)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Frame{Index: 3, Faces: []FaceObservation{{}, tt.face}}
			err := f.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
